package feedhub_test

import (
	"sync/atomic"

	"queryforum/backend/internal/models"
)

type MockClient struct {
	id          string
	categories  map[string]bool
	RecvChannel chan models.FeedEvent
	closed      atomic.Bool
}

func newMockClient(id string, buffer int, categories ...string) *MockClient {
	c := &MockClient{
		id:          id,
		categories:  make(map[string]bool),
		RecvChannel: make(chan models.FeedEvent, buffer),
	}
	for _, category := range categories {
		c.categories[category] = true
	}
	return c
}

func (c *MockClient) GetID() string                            { return c.id }
func (c *MockClient) Accepts(category string) bool              { return c.categories[category] }
func (c *MockClient) GetSendChannel() chan<- models.FeedEvent { return c.RecvChannel }
func (c *MockClient) Run()                                      {}
func (c *MockClient) Close()                                    { c.closed.Store(true) }
func (c *MockClient) Closed() bool                              { return c.closed.Load() }
