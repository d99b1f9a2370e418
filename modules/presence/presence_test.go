package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
	"github.com/example/campusmesh-dm/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name       string
		rec        *dm.PresenceRecord
		elapsed    time.Duration
		staleAfter time.Duration
		wantKind   dm.StatusKind
		wantAmount int
		wantLabel  string
	}{
		{name: "online just now", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: 5 * time.Second, staleAfter: time.Minute, wantKind: dm.StatusActiveNow, wantLabel: "Active now"},
		{name: "online at 59s", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: 59 * time.Second, staleAfter: time.Minute, wantKind: dm.StatusActiveNow, wantLabel: "Active now"},
		{name: "online but stale", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: 61 * time.Second, staleAfter: time.Minute, wantKind: dm.StatusActiveMinutesAgo, wantAmount: 1, wantLabel: "Active 1m ago"},
		{name: "short stale window", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: 40 * time.Second, staleAfter: 30 * time.Second, wantKind: dm.StatusActiveMinutesAgo, wantAmount: 1},
		{name: "offline within a minute", rec: &dm.PresenceRecord{IsOnline: false}, elapsed: 10 * time.Second, staleAfter: time.Minute, wantKind: dm.StatusActiveMinutesAgo, wantAmount: 1},
		{name: "minutes", rec: &dm.PresenceRecord{}, elapsed: 42 * time.Minute, staleAfter: time.Minute, wantKind: dm.StatusActiveMinutesAgo, wantAmount: 42, wantLabel: "Active 42m ago"},
		{name: "hours", rec: &dm.PresenceRecord{}, elapsed: 5*time.Hour + 10*time.Minute, staleAfter: time.Minute, wantKind: dm.StatusActiveHoursAgo, wantAmount: 5, wantLabel: "Active 5h ago"},
		{name: "days", rec: &dm.PresenceRecord{}, elapsed: 3 * 24 * time.Hour, staleAfter: time.Minute, wantKind: dm.StatusActiveDaysAgo, wantAmount: 3, wantLabel: "Active 3d ago"},
		{name: "over a week", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: 8 * 24 * time.Hour, staleAfter: time.Minute, wantKind: dm.StatusLastSeenRecently, wantLabel: "Last seen recently"},
		{name: "clock skew", rec: &dm.PresenceRecord{IsOnline: true}, elapsed: -5 * time.Second, staleAfter: time.Minute, wantKind: dm.StatusActiveNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := base.Add(tt.elapsed)
			tt.rec.LastSeenAt = base

			st := DeriveStatus("u1", tt.rec, now, tt.staleAfter)
			assert.Equal(t, tt.wantKind, st.Kind)
			assert.Equal(t, tt.wantAmount, st.Amount)
			if tt.wantLabel != "" {
				assert.Equal(t, tt.wantLabel, st.Label)
			}
			assert.Equal(t, base, st.LastSeenAt)
		})
	}
}

func TestDeriveStatus_NoRecord(t *testing.T) {
	st := DeriveStatus("u1", nil, base, time.Minute)
	assert.Equal(t, dm.StatusLastSeenRecently, st.Kind)
	assert.Equal(t, base, st.LastSeenAt)
	assert.False(t, st.IsOnline)
}

func newTestTracker(now *time.Time) *Tracker {
	tr := NewTracker(store.NewMemory(), time.Minute)
	tr.now = func() time.Time { return *now }
	return tr
}

func TestTracker_HeartbeatKeepsActiveNow(t *testing.T) {
	ctx := context.Background()
	now := base
	tr := newTestTracker(&now)

	for i := 0; i < 4; i++ {
		_, err := tr.Heartbeat(ctx, "u1")
		require.NoError(t, err)
		now = now.Add(30 * time.Second)

		st, err := tr.Status(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, dm.StatusActiveNow, st.Kind, "heartbeat %d", i)
	}

	// No heartbeat for two minutes: the online flag is no longer trusted.
	now = now.Add(90 * time.Second)
	st, err := tr.Status(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, dm.StatusActiveMinutesAgo, st.Kind)
	assert.Equal(t, 2, st.Amount)
	assert.True(t, st.IsOnline)
}

func TestTracker_GoOffline(t *testing.T) {
	ctx := context.Background()
	now := base
	tr := newTestTracker(&now)

	_, err := tr.Heartbeat(ctx, "u1")
	require.NoError(t, err)
	now = now.Add(10 * time.Second)
	require.NoError(t, tr.GoOffline(ctx, "u1"))

	rec, err := tr.Record(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.False(t, rec.IsOnline)
	assert.Equal(t, now, rec.LastSeenAt)

	st, err := tr.Status(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, dm.StatusActiveNow, st.Kind)
}

func TestTracker_UnknownUser(t *testing.T) {
	now := base
	tr := newTestTracker(&now)

	st, err := tr.Status(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Equal(t, dm.StatusLastSeenRecently, st.Kind)
	assert.Equal(t, now, st.LastSeenAt)
}

func TestTracker_InvalidUser(t *testing.T) {
	now := base
	tr := newTestTracker(&now)

	_, err := tr.Heartbeat(context.Background(), "bad/id")
	assert.True(t, errors.Is(err, dm.ErrValidation))
}

func TestTracker_Statuses(t *testing.T) {
	ctx := context.Background()
	now := base
	tr := newTestTracker(&now)

	_, err := tr.Heartbeat(ctx, "u1")
	require.NoError(t, err)

	sts, err := tr.Statuses(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, sts, 2)
	assert.Equal(t, "u1", sts[0].UserID)
	assert.Equal(t, dm.StatusActiveNow, sts[0].Kind)
	assert.Equal(t, dm.StatusLastSeenRecently, sts[1].Kind)
}

func TestViews(t *testing.T) {
	v := NewViews()

	v.SetActiveConversation("u1", "u1_u2")
	assert.True(t, v.IsViewing("u1", "u1_u2"))
	assert.False(t, v.IsViewing("u2", "u1_u2"))
	assert.False(t, v.IsViewing("u1", ""))

	// Last write wins across devices.
	v.SetActiveConversation("u1", "u1_u3")
	assert.Equal(t, "u1_u3", v.ActiveConversation("u1"))

	v.ClearIf("u1", "u1_u2")
	assert.Equal(t, "u1_u3", v.ActiveConversation("u1"))

	v.ClearIf("u1", "u1_u3")
	assert.Equal(t, "", v.ActiveConversation("u1"))

	v.SetActiveConversation("u2", "u1_u2")
	v.SetActiveConversation("u2", "")
	assert.False(t, v.IsViewing("u2", "u1_u2"))
}

func TestSessions(t *testing.T) {
	s := NewSessions()

	assert.Equal(t, 1, s.Open("u1"))
	assert.Equal(t, 2, s.Open("u1"))
	assert.Equal(t, 1, s.Open("u2"))
	assert.Equal(t, 3, s.Total())

	assert.False(t, s.Close("u1"))
	assert.True(t, s.Close("u1"))
	assert.False(t, s.Close("u1"), "closing an unknown session is not a last close")
	assert.Equal(t, 0, s.Count("u1"))
}

func TestModule_Health(t *testing.T) {
	m := NewModule(store.NewMemory(), time.Minute, &mockLogger{})
	assert.Equal(t, "presence", m.Name())

	require.NoError(t, m.Start(context.Background()))
	m.Sessions().Open("u1")

	h := m.Health(context.Background())
	assert.True(t, h.Healthy)
	assert.Equal(t, "memory", h.Details["store"])
	assert.Equal(t, 1, h.Details["sessions"])
	require.NoError(t, m.Stop(context.Background()))
}

func TestModule_handleOfflineIsBestEffort(t *testing.T) {
	m := NewModule(store.NewMemory(), time.Minute, &mockLogger{})

	resp, err := m.handleOffline(context.Background(), OfflineRequest{UserID: "bad/id"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)

	resp, err = m.handleOffline(context.Background(), OfflineRequest{UserID: "u1"}, nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}
