package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/aisensei-api/internal/dto"
	"github.com/noah-isme/aisensei-api/internal/models"
)

func receiveEvent(t *testing.T, events <-chan dto.GradingEvent) dto.GradingEvent {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for grading event")
		return dto.GradingEvent{}
	}
}

// memoryTransport is an in-process bus shared by every hub attached to it.
type memoryTransport struct {
	name       string
	publishErr error

	mu        sync.Mutex
	published int
	handlers  []func([]byte)
}

func (m *memoryTransport) Name() string { return m.name }

func (m *memoryTransport) Publish(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published++
	for _, handle := range m.handlers {
		handle(payload)
	}
	return nil
}

func (m *memoryTransport) Consume(_ context.Context, handle func([]byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handle)
}

func (m *memoryTransport) publishCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published
}

func (m *memoryTransport) consumers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

func TestGradingEventHubDeliversOnceAcrossTransports(t *testing.T) {
	redisBus := &memoryTransport{name: "redis"}
	natsBus := &memoryTransport{name: "nats"}
	ctx := context.Background()

	publisher := newGradingEventHub([]gradingEventTransport{redisBus, natsBus}, testLogger())
	receiver := newGradingEventHub([]gradingEventTransport{redisBus, natsBus}, testLogger())
	publisher.Start(ctx)
	receiver.Start(ctx)
	require.Eventually(t, func() bool {
		return redisBus.consumers() == 2 && natsBus.consumers() == 2
	}, 2*time.Second, 10*time.Millisecond)

	remote, stop := receiver.Subscribe(4)
	defer stop()

	publisher.Publish(ctx, dto.GradingEvent{AssignmentID: 4, SubmissionID: 40, Status: models.SubmissionStatusGraded})

	require.Equal(t, uint(40), receiveEvent(t, remote).SubmissionID)
	select {
	case duplicate := <-remote:
		t.Fatalf("duplicate event %+v", duplicate)
	case <-time.After(100 * time.Millisecond):
	}

	publisher.Publish(ctx, dto.GradingEvent{AssignmentID: 4, SubmissionID: 41, Status: models.SubmissionStatusFailed})
	require.Equal(t, uint(41), receiveEvent(t, remote).SubmissionID)
}

func TestGradingEventHubPublishesOnRemainingTransportsAfterFailure(t *testing.T) {
	redisBus := &memoryTransport{name: "redis", publishErr: errors.New("connection refused")}
	natsBus := &memoryTransport{name: "nats"}

	hub := newGradingEventHub([]gradingEventTransport{redisBus, natsBus}, testLogger())
	local, stop := hub.Subscribe(5)
	defer stop()

	err := hub.fanOut(context.Background(), dto.GradingEvent{AssignmentID: 5, SubmissionID: 50, Status: models.SubmissionStatusGraded})
	require.ErrorContains(t, err, "redis: connection refused")
	require.Equal(t, 1, natsBus.publishCount())

	hub.Publish(context.Background(), dto.GradingEvent{AssignmentID: 5, SubmissionID: 51, Status: models.SubmissionStatusGraded})
	require.Equal(t, uint(51), receiveEvent(t, local).SubmissionID)
	require.Equal(t, 2, natsBus.publishCount())
}

func TestGradingEventHubFiltersByAssignment(t *testing.T) {
	hub := NewGradingEventHub(nil, nil, testLogger())

	watched, stopWatched := hub.Subscribe(1)
	defer stopWatched()
	other, stopOther := hub.Subscribe(2)
	defer stopOther()

	hub.Publish(context.Background(), dto.GradingEvent{AssignmentID: 1, SubmissionID: 10, Status: models.SubmissionStatusGraded})

	event := receiveEvent(t, watched)
	require.Equal(t, uint(10), event.SubmissionID)
	require.False(t, event.OccurredAt.IsZero())

	select {
	case unexpected := <-other:
		t.Fatalf("unexpected event %+v", unexpected)
	default:
	}
}

func TestGradingEventHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewGradingEventHub(nil, nil, testLogger())

	events, unsubscribe := hub.Subscribe(7)
	unsubscribe()
	unsubscribe()

	_, open := <-events
	require.False(t, open)

	hub.Publish(context.Background(), dto.GradingEvent{AssignmentID: 7, Status: models.SubmissionStatusFailed})
}

func TestGradingEventHubFansOutThroughRedis(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	publisherClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer publisherClient.Close()
	receiverClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer receiverClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewGradingEventHub(publisherClient, nil, testLogger())
	receiver := NewGradingEventHub(receiverClient, nil, testLogger())
	publisher.Start(ctx)
	receiver.Start(ctx)

	require.Eventually(t, func() bool {
		return server.PubSubNumSub(gradingEventsChannel)[gradingEventsChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	local, stopLocal := publisher.Subscribe(3)
	defer stopLocal()
	remote, stopRemote := receiver.Subscribe(3)
	defer stopRemote()

	score := 9.5
	publisher.Publish(ctx, dto.GradingEvent{AssignmentID: 3, SubmissionID: 30, Status: models.SubmissionStatusGraded, Score: &score})

	remoteEvent := receiveEvent(t, remote)
	require.Equal(t, uint(30), remoteEvent.SubmissionID)
	require.NotNil(t, remoteEvent.Score)
	require.Equal(t, 9.5, *remoteEvent.Score)

	localEvent := receiveEvent(t, local)
	require.Equal(t, uint(30), localEvent.SubmissionID)

	// The publisher skips its own envelope, so the local subscriber sees the event once.
	select {
	case duplicate := <-local:
		t.Fatalf("duplicate event %+v", duplicate)
	case <-time.After(100 * time.Millisecond):
	}
}
