package chat

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/herald/internal/campaign"
	"github.com/MikeSquared-Agency/herald/internal/sse"
)

var now = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func emailProposal() *campaign.ActionableData {
	return &campaign.ActionableData{
		Time:    "2026-03-02T10:00:00Z",
		Message: "20% off everything",
		Channel: "Email",
		Audience: []campaign.Audience{
			{Name: "Ada", Email: "ada@example.com"},
			{Name: "Linus", Email: "linus@example.com"},
		},
	}
}

func openTurn(t *testing.T) (*History, *Turn, string) {
	t.Helper()
	h := NewHistory()
	require.NoError(t, h.Append(NewUserMessage("promote our sale", now)))
	a := NewAssistantMessage(now)
	require.NoError(t, h.Append(a))
	return h, NewTurn(h, a.ID), a.ID
}

func mustGet(t *testing.T, h *History, id string) Message {
	t.Helper()
	m, ok := h.Get(id)
	require.True(t, ok, "message %s missing", id)
	return m
}

func TestTurn_PlainReply(t *testing.T) {
	h, turn, id := openTurn(t)

	turn.Apply(sse.Event{Type: sse.TypeStart, Message: "Starting response stream..."})
	m := mustGet(t, h, id)
	assert.Equal(t, StartingPlaceholder, m.Body)
	assert.True(t, m.Streaming)
	assert.Equal(t, 0, m.Progress)

	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Hello", Progress: 40})
	m = mustGet(t, h, id)
	assert.Equal(t, "Hello", m.Body)
	assert.Equal(t, 40, m.Progress)

	turn.Apply(sse.Event{Type: sse.TypeComplete})
	m = mustGet(t, h, id)
	assert.Equal(t, "Hello", m.Content())
	assert.Equal(t, 100, m.Progress)
	assert.False(t, m.Streaming)
	assert.False(t, m.HasActionableCampaign)
	assert.True(t, turn.Done())
}

func TestTurn_ActionableReply(t *testing.T) {
	h, turn, id := openTurn(t)

	turn.Apply(sse.Event{Type: sse.TypeStart, ActionableData: emailProposal()})
	m := mustGet(t, h, id)
	assert.True(t, m.HasActionableCampaign)
	assert.Equal(t, StartingPlaceholder, m.Content(), "trailer must wait for completion")

	turn.Apply(sse.Event{Type: sse.TypeComplete})
	m = mustGet(t, h, id)
	assert.True(t, m.HasActionableCampaign)
	assert.Equal(t, EmptyReply, m.Body)
	assert.True(t, strings.HasSuffix(m.Content(), "🚀 **Launch Email campaign?**"))
	assert.Contains(t, m.Content(), "Email")
}

func TestTurn_AccumulatesChunks(t *testing.T) {
	h, turn, id := openTurn(t)

	turn.Apply(sse.Event{Type: sse.TypeStart})
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Spring", Progress: 10})
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "sale is", Progress: 50})
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "live.", Progress: 90})

	assert.Equal(t, "Spring sale is live.", mustGet(t, h, id).Body)
}

func TestTurn_ProgressNeverRegresses(t *testing.T) {
	h, turn, id := openTurn(t)
	turn.Apply(sse.Event{Type: sse.TypeStart})

	last := 0
	for _, p := range []int{10, 35, 20, 0, 60, 150, 70} {
		turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "w", Progress: p})
		got := mustGet(t, h, id).Progress
		assert.GreaterOrEqual(t, got, last)
		assert.LessOrEqual(t, got, 100)
		last = got
	}

	turn.Apply(sse.Event{Type: sse.TypeComplete})
	assert.Equal(t, 100, mustGet(t, h, id).Progress)
}

func TestTurn_RepeatedStartIsIgnored(t *testing.T) {
	h, turn, id := openTurn(t)

	assert.True(t, turn.Apply(sse.Event{Type: sse.TypeStart, ActionableData: emailProposal()}))
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Hi", Progress: 20})

	sms := emailProposal()
	sms.Channel = "SMS"
	assert.False(t, turn.Apply(sse.Event{Type: sse.TypeStart, ActionableData: sms}))

	m := mustGet(t, h, id)
	assert.Equal(t, "Hi", m.Body)
	assert.Equal(t, "Email", m.ActionableData.Channel)
}

func TestTurn_TerminalIgnoresFurtherEvents(t *testing.T) {
	h, turn, id := openTurn(t)
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Done", Progress: 100})
	turn.Apply(sse.Event{Type: sse.TypeComplete})

	assert.False(t, turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "late", Progress: 100}))
	assert.False(t, turn.Fail("promote our sale"))
	assert.Equal(t, "Done", mustGet(t, h, id).Body)
}

func TestTurn_UnknownEventIgnored(t *testing.T) {
	h, turn, id := openTurn(t)
	assert.False(t, turn.Apply(sse.Event{Type: "heartbeat"}))
	m := mustGet(t, h, id)
	assert.Empty(t, m.Body)
	assert.True(t, m.Streaming)
}

func TestTurn_Fail(t *testing.T) {
	h, turn, id := openTurn(t)
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "partial", Progress: 30})

	assert.True(t, turn.Fail("promote our sale"))
	m := mustGet(t, h, id)
	assert.False(t, m.Streaming)
	assert.Equal(t, FallbackReply("promote our sale"), m.Body)
	assert.Contains(t, m.Body, `"promote our sale"`)
	assert.True(t, turn.Done())
}

func TestTurn_FailAfterActionableStartHasNoTrailer(t *testing.T) {
	h, turn, id := openTurn(t)
	turn.Apply(sse.Event{Type: sse.TypeStart, ActionableData: emailProposal()})
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Drafting", Progress: 20})
	require.True(t, mustGet(t, h, id).HasActionableCampaign)

	require.True(t, turn.Fail("promote our sale"))
	m := mustGet(t, h, id)
	assert.True(t, m.Errored)
	assert.False(t, m.HasActionableCampaign)
	assert.Equal(t, FallbackReply("promote our sale"), m.Content())
}

func TestTurn_CompleteIsNotErrored(t *testing.T) {
	h, turn, id := openTurn(t)
	turn.Apply(sse.Event{Type: sse.TypeStart, ActionableData: emailProposal()})
	turn.Apply(sse.Event{Type: sse.TypeComplete})

	m := mustGet(t, h, id)
	assert.False(t, m.Errored)
	assert.True(t, m.HasActionableCampaign)
	assert.True(t, strings.HasSuffix(m.Content(), "🚀 **Launch Email campaign?**"))
}

func TestContent_FollowsLaunchStatus(t *testing.T) {
	m := NewAssistantMessage(now)
	m.Streaming = false
	m.Body = "Here is your plan."
	m.ActionableData = emailProposal()

	assert.Equal(t, "Here is your plan.\n\n🚀 **Launch Email campaign?**", m.Content())

	m.Launch = LaunchState{Status: LaunchLaunching}
	assert.True(t, strings.HasSuffix(m.Content(), "🚀 **Launch Email campaign?**"))

	m.Launch = LaunchState{Status: LaunchSucceeded, Recipients: 2, SettledAt: now}
	assert.Contains(t, m.Content(), "✅ **Email campaign launched successfully!**")
	assert.Contains(t, m.Content(), "📧 Sent to 2 recipients")
	assert.NotContains(t, m.Content(), "🚀")

	m.Launch = LaunchState{Status: LaunchFailed}
	assert.True(t, strings.HasSuffix(m.Content(), "❌ **Failed to launch Email campaign**\nPlease try again later."))
}

func TestHistory_UpdateUnknownIsNoop(t *testing.T) {
	h := NewHistory()
	body := "x"
	assert.False(t, h.Update("missing", Patch{Body: &body}))
	assert.Zero(t, h.Len())
}

func TestHistory_PreservesOrderAndIDs(t *testing.T) {
	h := NewHistory()
	var ids []string
	for i := 0; i < 5; i++ {
		m := NewUserMessage("msg", now)
		ids = append(ids, m.ID)
		require.NoError(t, h.Append(m))
	}
	body := "edited"
	h.Update(ids[2], Patch{Body: &body})

	snap := h.Snapshot()
	require.Len(t, snap, 5)
	for i, m := range snap {
		assert.Equal(t, ids[i], m.ID)
	}
	assert.Equal(t, "edited", snap[2].Body)
	assert.ErrorIs(t, h.Append(snap[0]), ErrDuplicateID)
}

func TestHistory_ActionableDataWriteOnce(t *testing.T) {
	h := NewHistory()
	a := NewAssistantMessage(now)
	u := NewUserMessage("hi", now)
	require.NoError(t, h.Append(a))
	require.NoError(t, h.Append(u))

	h.Update(a.ID, Patch{ActionableData: emailProposal()})
	other := emailProposal()
	other.Channel = "WhatsApp"
	h.Update(a.ID, Patch{ActionableData: other})
	h.Update(u.ID, Patch{ActionableData: emailProposal()})

	assert.Equal(t, "Email", mustGet(t, h, a.ID).ActionableData.Channel)
	assert.Nil(t, mustGet(t, h, u.ID).ActionableData)
	assert.False(t, mustGet(t, h, u.ID).HasActionableCampaign)
}

func TestHistory_SnapshotIsCopy(t *testing.T) {
	h := NewHistory()
	a := NewAssistantMessage(now)
	require.NoError(t, h.Append(a))
	h.Update(a.ID, Patch{ActionableData: emailProposal()})

	snap := h.Snapshot()
	snap[0].Body = "mutated"
	snap[0].ActionableData.Audience[0].Name = "Mallory"

	m := mustGet(t, h, a.ID)
	assert.Empty(t, m.Body)
	assert.Equal(t, "Ada", m.ActionableData.Audience[0].Name)
}

func TestHistory_ObserverSeesEveryMutation(t *testing.T) {
	h := NewHistory()
	var mu sync.Mutex
	var seen []string
	h.SetObserver(func(m Message) {
		mu.Lock()
		seen = append(seen, m.Body)
		mu.Unlock()
	})

	a := NewAssistantMessage(now)
	require.NoError(t, h.Append(a))
	turn := NewTurn(h, a.ID)
	turn.Apply(sse.Event{Type: sse.TypeStart})
	turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "Hi", Progress: 50})
	turn.Apply(sse.Event{Type: sse.TypeComplete})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", StartingPlaceholder, "Hi", "Hi"}, seen)
}

func TestHistory_ConcurrentUpdates(t *testing.T) {
	h := NewHistory()
	var ids []string
	for i := 0; i < 8; i++ {
		m := NewAssistantMessage(now)
		ids = append(ids, m.ID)
		require.NoError(t, h.Append(m))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			turn := NewTurn(h, id)
			for p := 0; p <= 100; p += 10 {
				turn.Apply(sse.Event{Type: sse.TypeChunk, Content: "w", Progress: p})
			}
			turn.Apply(sse.Event{Type: sse.TypeComplete})
		}(id)
	}
	wg.Wait()

	for _, m := range h.Snapshot() {
		assert.False(t, m.Streaming)
		assert.Equal(t, 100, m.Progress)
		assert.Equal(t, strings.TrimSpace(strings.Repeat("w ", 11)), m.Body)
	}
}

func TestHistory_OpenTracksStreamingAssistant(t *testing.T) {
	h, turn, id := openTurn(t)
	open, ok := h.Open()
	require.True(t, ok)
	assert.Equal(t, id, open)

	turn.Apply(sse.Event{Type: sse.TypeComplete})
	_, ok = h.Open()
	assert.False(t, ok)
}
