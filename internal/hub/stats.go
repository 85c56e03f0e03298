// internal/hub/stats.go
package hub

// Stats contains a point-in-time snapshot of the registry.
type Stats struct {
	Sessions    int         `json:"sessions"`
	OnlineUsers int         `json:"online_users"`
	Rooms       int         `json:"rooms"`
	RoomDetails []RoomStats `json:"room_details"`
}

// RoomStats contains per-room statistics.
type RoomStats struct {
	ConversationID string `json:"conversation_id"`
	Members        int    `json:"members"`
}

// Stats returns current registry statistics.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		Sessions:    len(h.sessions),
		OnlineUsers: len(h.users),
		Rooms:       len(h.rooms),
		RoomDetails: make([]RoomStats, 0, len(h.rooms)),
	}
	for convID, members := range h.rooms {
		stats.RoomDetails = append(stats.RoomDetails, RoomStats{
			ConversationID: convID.String(),
			Members:        len(members),
		})
	}
	return stats
}
