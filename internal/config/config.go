package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	StreamURL       string
	EmailURL        string
	SMSURL          string
	WhatsAppURL     string
	StrictChannels  bool
	DispatchTimeout time.Duration
	APIToken        string
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	LogLevel        string
}

func Load() Config {
	return Config{
		Port:            envInt("HERALD_PORT", 8760),
		StreamURL:       envStr("HERALD_STREAM_URL", "http://localhost:8000/stream/chat"),
		EmailURL:        envStr("HERALD_EMAIL_URL", "http://localhost:8000/campaign/email"),
		SMSURL:          envStr("HERALD_SMS_URL", "http://localhost:8000/campaign/sms"),
		WhatsAppURL:     envStr("HERALD_WHATSAPP_URL", "http://localhost:8000/campaign/whatsapp"),
		StrictChannels:  envBool("HERALD_STRICT_CHANNELS", false),
		DispatchTimeout: envDuration("HERALD_DISPATCH_TIMEOUT", 30*time.Second),
		APIToken:        envStr("HERALD_API_TOKEN", ""),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
	}
}

// LoadDotenv loads variables from the given files (".env" when none are given)
// without overriding the environment. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
