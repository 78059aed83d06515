package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MikeSquared-Agency/herald/internal/request"
)

// Handoff is the one-shot payload a prior screen passes to a new session.
type Handoff struct {
	Query   string          `json:"query"`
	Toggles request.Toggles `json:"toggles"`
}

// LoadHandoff reads the handoff at path and removes the file, so it is consumed once.
// A missing file yields an empty handoff.
func LoadHandoff(path string) (Handoff, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return Handoff{}, nil
		}
		return Handoff{}, fmt.Errorf("read handoff: %w", err)
	}

	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return Handoff{}, fmt.Errorf("parse handoff: %w", err)
	}

	if err := os.Remove(p); err != nil {
		return Handoff{}, fmt.Errorf("discard handoff: %w", err)
	}
	return h, nil
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
