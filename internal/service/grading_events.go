package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/observability"
)

const (
	gradingEventBufferSize = 32
	gradingEventSeenTTL    = 2 * time.Minute
	// GradingEventsSubject is the NATS subject grading events fan out on.
	GradingEventsSubject = "aisensei.grading.events"
	gradingEventsChannel = "aisensei:grading:events"
)

// GradingEventHub delivers grading state changes to live subscribers on this
// node and to the other API nodes.
type GradingEventHub interface {
	Publish(ctx context.Context, event dto.GradingEvent)
	Subscribe(assignmentID uint) (<-chan dto.GradingEvent, func())
	Start(ctx context.Context)
}

// gradingEventTransport carries encoded envelopes between API nodes.
type gradingEventTransport interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Consume(ctx context.Context, handle func([]byte))
}

type gradingEventHub struct {
	transports []gradingEventTransport
	logger     zerolog.Logger
	broker     *gradingEventBroker
	nodeID     string
	seen       *gocache.Cache
	now        func() time.Time
}

type gradingEnvelope struct {
	ID     string           `json:"id"`
	Source string           `json:"source"`
	Event  dto.GradingEvent `json:"event"`
	SentAt time.Time        `json:"sent_at"`
}

type gradingEventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.GradingEvent]struct{}
}

// NewGradingEventHub builds the hub. Redis and NATS are optional; when both are
// set each envelope travels on both and receivers drop the second copy by id.
func NewGradingEventHub(redisClient *redis.Client, natsConn *nats.Conn, logger zerolog.Logger) GradingEventHub {
	logger = logger.With().Str("component", "grading_events").Logger()

	var transports []gradingEventTransport
	if redisClient != nil {
		transports = append(transports, &redisEventTransport{client: redisClient, logger: logger})
	}
	if natsConn != nil {
		transports = append(transports, &natsEventTransport{conn: natsConn, logger: logger})
	}
	return newGradingEventHub(transports, logger)
}

func newGradingEventHub(transports []gradingEventTransport, logger zerolog.Logger) *gradingEventHub {
	return &gradingEventHub{
		transports: transports,
		logger:     logger,
		broker: &gradingEventBroker{
			subscribers: make(map[uint]map[chan dto.GradingEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		seen:   gocache.New(gradingEventSeenTTL, 2*gradingEventSeenTTL),
		now:    time.Now,
	}
}

func (h *gradingEventHub) Start(ctx context.Context) {
	for _, transport := range h.transports {
		go transport.Consume(ctx, h.handleEnvelope)
	}
}

func (h *gradingEventHub) Publish(ctx context.Context, event dto.GradingEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = h.now().UTC()
	}

	h.deliver(event)

	if err := h.fanOut(ctx, event); err != nil {
		h.logger.Warn().Err(err).Uint("submission_id", event.SubmissionID).Msg("failed to fan out grading event")
	}
}

func (h *gradingEventHub) Subscribe(assignmentID uint) (<-chan dto.GradingEvent, func()) {
	channel := make(chan dto.GradingEvent, gradingEventBufferSize)

	h.broker.subscribe(assignmentID, channel)
	observability.EventClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.broker.unsubscribe(assignmentID, channel)
			observability.EventClientsActive().Dec()
		})
	}

	return channel, cleanup
}

func (h *gradingEventHub) deliver(event dto.GradingEvent) {
	observability.GradingEvents().WithLabelValues(event.Status).Inc()
	h.broker.broadcast(event.AssignmentID, event)
}

func (h *gradingEventHub) fanOut(ctx context.Context, event dto.GradingEvent) error {
	if len(h.transports) == 0 {
		return nil
	}

	payload, err := json.Marshal(gradingEnvelope{
		ID:     uuid.NewString(),
		Source: h.nodeID,
		Event:  event,
		SentAt: h.now().UTC(),
	})
	if err != nil {
		return err
	}

	var errs []error
	for _, transport := range h.transports {
		if err := transport.Publish(ctx, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", transport.Name(), err))
		}
	}

	return errors.Join(errs...)
}

type redisEventTransport struct {
	client *redis.Client
	logger zerolog.Logger
}

func (t *redisEventTransport) Name() string { return "redis" }

func (t *redisEventTransport) Publish(ctx context.Context, payload []byte) error {
	return t.client.Publish(ctx, gradingEventsChannel, payload).Err()
}

func (t *redisEventTransport) Consume(ctx context.Context, handle func([]byte)) {
	pubsub := t.client.Subscribe(ctx, gradingEventsChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			t.logger.Error().Err(err).Msg("grading event redis subscription closed")
			return
		}
		handle([]byte(msg.Payload))
	}
}

type natsEventTransport struct {
	conn   *nats.Conn
	logger zerolog.Logger
}

func (t *natsEventTransport) Name() string { return "nats" }

func (t *natsEventTransport) Publish(_ context.Context, payload []byte) error {
	return t.conn.Publish(GradingEventsSubject, payload)
}

func (t *natsEventTransport) Consume(ctx context.Context, handle func([]byte)) {
	// Plain subscribe: every node must see every event to reach its own sockets.
	sub, err := t.conn.Subscribe(GradingEventsSubject, func(msg *nats.Msg) {
		handle(msg.Data)
	})
	if err != nil {
		t.logger.Error().Err(err).Msg("failed to subscribe to grading events subject")
		return
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		t.logger.Warn().Err(err).Msg("failed to drain grading events subscription")
	}
}

func (h *gradingEventHub) handleEnvelope(payload []byte) {
	var envelope gradingEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		h.logger.Warn().Err(err).Msg("invalid grading event payload")
		return
	}

	if envelope.Source == h.nodeID {
		return
	}
	if envelope.ID != "" {
		// Add fails when the id is already cached, i.e. the other transport won.
		if err := h.seen.Add(envelope.ID, struct{}{}, gocache.DefaultExpiration); err != nil {
			return
		}
	}

	h.deliver(envelope.Event)
}

func (b *gradingEventBroker) subscribe(assignmentID uint, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[assignmentID]; !exists {
		b.subscribers[assignmentID] = make(map[chan dto.GradingEvent]struct{})
	}
	b.subscribers[assignmentID][ch] = struct{}{}
}

func (b *gradingEventBroker) unsubscribe(assignmentID uint, ch chan dto.GradingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[assignmentID]; ok {
		if _, present := subscribers[ch]; !present {
			return
		}
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, assignmentID)
		}
	}
}

func (b *gradingEventBroker) broadcast(assignmentID uint, event dto.GradingEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[assignmentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
