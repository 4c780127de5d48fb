package feedhub

import "queryforum/backend/internal/models"

// Client is the interface for any live connection that receives feed
// events. The hub owns a registered client: it is the only caller of Close.
type Client interface {
	// GetID returns a unique identifier for this connection.
	GetID() string
	// Accepts reports whether the connection may see events of category.
	// It must apply the same access predicate as category reads.
	Accepts(category string) bool

	// GetSendChannel returns the channel the hub sends events to.
	GetSendChannel() chan<- models.FeedEvent

	// Run starts the client's pumps.
	Run()
	// Close shuts down the send side of the client.
	Close()
}
