package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/marketing-agent/internal/models"
	"github.com/noah-isme/marketing-agent/internal/observability"
)

const eventBufferSize = 16

// LifecycleEvent announces that an action changed status.
type LifecycleEvent struct {
	Source   string              `json:"source"`
	ActionID string              `json:"action_id"`
	Type     models.ActionType   `json:"type"`
	Status   models.ActionStatus `json:"status"`
	At       time.Time           `json:"at"`
}

// EventPublisher is the write side used by the approval queue and executor.
type EventPublisher interface {
	Publish(ctx context.Context, action models.PendingAction)
}

// EventService fans lifecycle events out to websocket clients and other replicas.
type EventService interface {
	EventPublisher
	Subscribe() (<-chan LifecycleEvent, func())
	Start(ctx context.Context)
}

type eventService struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	broker       *eventBroker
	nodeID       string
	now          func() time.Time
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[chan LifecycleEvent]struct{}
}

// NewEventService constructs an event service. Redis and NATS are optional.
func NewEventService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) EventService {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":actions"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".actions"
	}

	return &eventService{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_service").Logger(),
		broker:       &eventBroker{subscribers: make(map[chan LifecycleEvent]struct{})},
		nodeID:       uuid.NewString(),
		now:          time.Now,
	}
}

func (s *eventService) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

// Publish never fails the caller. Broker errors are logged.
func (s *eventService) Publish(ctx context.Context, action models.PendingAction) {
	event := LifecycleEvent{
		Source:   s.nodeID,
		ActionID: action.ID,
		Type:     action.Type,
		Status:   action.Status,
		At:       s.now().UTC(),
	}

	s.broker.broadcast(event)
	if err := s.publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("action_id", action.ID).Msg("failed to publish lifecycle event to broker")
	}
}

func (s *eventService) Subscribe() (<-chan LifecycleEvent, func()) {
	channel := make(chan LifecycleEvent, eventBufferSize)

	s.broker.subscribe(channel)
	observability.EventClientsActive().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(channel)
			observability.EventClientsActive().Dec()
		})
	}
	return channel, cleanup
}

func (s *eventService) publish(ctx context.Context, event LifecycleEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *eventService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("lifecycle redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *eventService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats lifecycle subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain lifecycle nats subscription")
		}
	}()
}

func (s *eventService) handleEvent(payload []byte) {
	var event LifecycleEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid lifecycle event payload")
		return
	}

	if event.Source == s.nodeID || event.ActionID == "" {
		return
	}

	s.broker.broadcast(event)
}

func (b *eventBroker) subscribe(ch chan LifecycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(ch chan LifecycleEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *eventBroker) broadcast(event LifecycleEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
