package port

import "github.com/dreschagin/pipeline-analytics/internal/application/dto"

// RealtimePublisher defines the interface for pushing updates to
// connected clients (Port). The implementation lives in the
// Infrastructure layer (WebSocket Hub).
type RealtimePublisher interface {
	// Broadcast sends an update to all connected clients
	Broadcast(update *dto.RealtimeUpdate)

	// ClientCount returns the number of connected clients
	ClientCount() int
}
