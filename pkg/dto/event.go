package dto

// WSEvent is a WebSocket message for real-time routing updates.
type WSEvent struct {
	Type    string `json:"type"` // photo_routed
	OwnerID string `json:"owner_id"`
	Data    any    `json:"data,omitempty"`
}
