// Package feedhub pushes complaint invalidation events to connected
// websocket clients. Events carry no complaint data; clients re-fetch what
// changed through the regular read paths.
package feedhub

import (
	"context"
	"sync"
	"sync/atomic"

	"queryforum/backend/internal/logging"
	"queryforum/backend/internal/metrics"
	"queryforum/backend/internal/models"
	"queryforum/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const localQueueSize = 256

// EventBus carries events between server instances.
type EventBus interface {
	PublishEvent(ctx context.Context, event models.FeedEvent) error
	SubscribeEvents(ctx context.Context) (*redis.PubSub, error)
}

// ManagerService is the hub. Its client set is only touched by the Run
// goroutine.
type ManagerService struct {
	clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client
	localCh      chan models.FeedEvent

	bus     EventBus
	metrics *metrics.Metrics
	logger  *zap.Logger

	connected atomic.Int64
	done      chan struct{}
	doneOnce  sync.Once
}

// NewManagerService creates a hub. With a nil bus events stay within this
// process.
func NewManagerService(bus EventBus, m *metrics.Metrics, logger *zap.Logger) *ManagerService {
	return &ManagerService{
		clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		localCh:      make(chan models.FeedEvent, localQueueSize),
		bus:          bus,
		metrics:      m,
		logger:       logging.OrNop(logger).Named("feedhub"),
		done:         make(chan struct{}),
	}
}

// Publish fans event out to every instance. It never blocks the caller for
// long: when the bus fails the event is delivered locally only, and when the
// local queue is full it is dropped.
func (m *ManagerService) Publish(ctx context.Context, event models.FeedEvent) {
	if m.bus != nil {
		err := m.bus.PublishEvent(ctx, event)
		if err == nil {
			return
		}
		m.logger.Warn("event bus publish failed, delivering locally",
			zap.String("type", string(event.Type)),
			zap.String("complaint_id", event.ComplaintID),
			zap.Error(err),
		)
	}
	select {
	case m.localCh <- event:
	default:
		m.logger.Warn("feed queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("complaint_id", event.ComplaintID),
		)
	}
}

// Register hands c to the hub. It returns false when the hub has stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister removes c. It is safe to call after the hub has stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Connected returns the number of registered clients.
func (m *ManagerService) Connected() int {
	return int(m.connected.Load())
}

// Run serves the hub until ctx is cancelled, then closes every client.
func (m *ManagerService) Run(ctx context.Context) error {
	defer m.doneOnce.Do(func() { close(m.done) })

	var busCh <-chan *redis.Message
	if m.bus != nil {
		sub, err := m.bus.SubscribeEvents(ctx)
		if err != nil {
			return err
		}
		defer sub.Close()
		busCh = sub.Channel()
	}

	m.logger.Info("feed hub started", zap.Bool("distributed", m.bus != nil))
	defer m.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case c := <-m.RegisterCh:
			m.clients[c.GetID()] = c
			m.connected.Add(1)
			m.metrics.FeedClientsChanged(1)

		case c := <-m.UnregisterCh:
			m.remove(c.GetID())

		case event := <-m.localCh:
			m.broadcast(event)

		case msg, ok := <-busCh:
			if !ok {
				m.logger.Warn("event bus subscription closed")
				busCh = nil
				continue
			}
			event, err := storage.DecodeEvent(msg.Payload)
			if err != nil {
				m.logger.Error("Error unmarshalling Redis message", zap.Error(err))
				continue
			}
			m.broadcast(event)
		}
	}
}

func (m *ManagerService) broadcast(event models.FeedEvent) {
	for id, c := range m.clients {
		if !c.Accepts(event.Category) {
			continue
		}
		select {
		case c.GetSendChannel() <- event:
		default:
			// Slow consumer: drop it rather than stall every other client.
			m.logger.Warn("client send buffer full, disconnecting", zap.String("client_id", id))
			m.remove(id)
		}
	}
}

func (m *ManagerService) remove(id string) {
	c, ok := m.clients[id]
	if !ok {
		return
	}
	delete(m.clients, id)
	c.Close()
	m.connected.Add(-1)
	m.metrics.FeedClientsChanged(-1)
}

func (m *ManagerService) shutdown() {
	for id := range m.clients {
		m.remove(id)
	}
	m.logger.Info("feed hub stopped")
}
