package presence

import "github.com/example/campusmesh-dm/domain/dm"

// Service names.
const (
	ServiceHeartbeat = "presence-heartbeat"
	ServiceOffline   = "presence-offline"
	ServiceStatus    = "presence-status"
	ServiceStatuses  = "presence-statuses"
)

// HeartbeatRequest is the request for a heartbeat.
type HeartbeatRequest struct {
	UserID string `json:"user_id"`
}

// HeartbeatResponse is the response for a heartbeat.
type HeartbeatResponse struct {
	Record dm.PresenceRecord `json:"record"`
}

// OfflineRequest is the request for going offline.
type OfflineRequest struct {
	UserID string `json:"user_id"`
}

// OfflineResponse is the response for going offline.
type OfflineResponse struct {
	Success bool `json:"success"`
}

// StatusRequest is the request for one user's status.
type StatusRequest struct {
	UserID string `json:"user_id"`
}

// StatusResponse is the response for one user's status.
type StatusResponse struct {
	Status dm.PresenceStatus `json:"status"`
}

// StatusesRequest is the request for a batch of statuses.
type StatusesRequest struct {
	UserIDs []string `json:"user_ids"`
}

// StatusesResponse is the response for a batch of statuses.
type StatusesResponse struct {
	Statuses []dm.PresenceStatus `json:"statuses"`
}
