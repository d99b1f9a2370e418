package presence

import (
	"fmt"
	"time"

	"github.com/example/campusmesh-dm/domain/dm"
)

// activeNowWindow caps the ActiveNow bucket regardless of the stale setting.
const activeNowWindow = time.Minute

// DeriveStatus maps a presence record onto a coarse bucket. A missing
// record yields LastSeenRecently stamped with now.
func DeriveStatus(userID string, rec *dm.PresenceRecord, now time.Time, staleAfter time.Duration) dm.PresenceStatus {
	if rec == nil {
		return dm.PresenceStatus{
			UserID:     userID,
			Kind:       dm.StatusLastSeenRecently,
			LastSeenAt: now,
			Label:      "Last seen recently",
		}
	}

	elapsed := now.Sub(rec.LastSeenAt)
	if elapsed < 0 {
		elapsed = 0
	}

	st := dm.PresenceStatus{
		UserID:     userID,
		LastSeenAt: rec.LastSeenAt,
		IsOnline:   rec.IsOnline,
	}

	window := activeNowWindow
	if staleAfter > 0 && staleAfter < window {
		window = staleAfter
	}

	switch {
	case rec.IsOnline && elapsed < window:
		st.Kind = dm.StatusActiveNow
		st.Label = "Active now"
	case elapsed < time.Hour:
		st.Kind = dm.StatusActiveMinutesAgo
		st.Amount = max(1, int(elapsed/time.Minute))
		st.Label = fmt.Sprintf("Active %dm ago", st.Amount)
	case elapsed < 24*time.Hour:
		st.Kind = dm.StatusActiveHoursAgo
		st.Amount = int(elapsed / time.Hour)
		st.Label = fmt.Sprintf("Active %dh ago", st.Amount)
	case elapsed < 7*24*time.Hour:
		st.Kind = dm.StatusActiveDaysAgo
		st.Amount = int(elapsed / (24 * time.Hour))
		st.Label = fmt.Sprintf("Active %dd ago", st.Amount)
	default:
		st.Kind = dm.StatusLastSeenRecently
		st.Label = "Last seen recently"
	}
	return st
}
