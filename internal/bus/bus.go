// Package bus implements the message-bus subscriber (C11): one goroutine
// per topic partition over Redis Streams, decoding deliveries into
// IndexingTasks and handing them to a pipeline, acking only on accept so
// back-pressure triggers redelivery, grounded on the original event
// payload shapes in §6 and adapted for go-redis/redis/v8.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/sonet-social/search-service/infrastructure/redaction"
	"github.com/sonet-social/search-service/internal/model"
)

// Topics subscribed per §4.9.
const (
	TopicNoteCreated  = "note.created"
	TopicNoteUpdated  = "note.updated"
	TopicNoteDeleted  = "note.deleted"
	TopicNoteMetrics  = "note.metrics"
	TopicUserCreated  = "user.created"
	TopicUserUpdated  = "user.updated"
	TopicUserDeleted  = "user.deleted"
	TopicUserMetrics  = "user.metrics"
)

var allTopics = []string{
	TopicNoteCreated, TopicNoteUpdated, TopicNoteDeleted, TopicNoteMetrics,
	TopicUserCreated, TopicUserUpdated, TopicUserDeleted, TopicUserMetrics,
}

// Sink is the subset of *pipeline.Pipeline the subscriber depends on,
// accepted as an interface per the opaque-handle injection pattern. Note
// and user topics are routed to independent sinks.
type Sink interface {
	Enqueue(task *model.IndexingTask) bool
}

// Config controls the Redis Streams connection and consumer identity.
type Config struct {
	Addrs       []string
	ConsumerTag string
	GroupName   string
}

// Subscriber consumes the eight topics above from Redis Streams, dispatching
// note.* to notesSink and user.* to usersSink.
type Subscriber struct {
	client    *redis.Client
	cfg       Config
	notesSink Sink
	usersSink Sink
	log       *zap.Logger

	cancel context.CancelFunc
}

// New constructs a Subscriber. log should be a dedicated zap logger per
// SPEC_FULL.md's ambient-stack assignment for the bus component.
func New(cfg Config, notesSink, usersSink Sink, log *zap.Logger) *Subscriber {
	if cfg.GroupName == "" {
		cfg.GroupName = "search-service"
	}
	client := redis.NewClient(&redis.Options{Addr: firstAddr(cfg.Addrs)})
	return &Subscriber{client: client, cfg: cfg, notesSink: notesSink, usersSink: usersSink, log: log}
}

func firstAddr(addrs []string) string {
	if len(addrs) == 0 {
		return "localhost:6379"
	}
	return addrs[0]
}

// Start ensures each topic's consumer group exists and launches one
// goroutine per topic partition, preserving in-partition delivery order.
func (s *Subscriber) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, topic := range allTopics {
		if err := s.ensureGroup(runCtx, topic); err != nil {
			return fmt.Errorf("bus: ensure group for %s: %w", topic, err)
		}
		go s.consumeLoop(runCtx, topic)
	}
	return nil
}

// Stop cancels all consumer loops.
func (s *Subscriber) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) ensureGroup(ctx context.Context, topic string) error {
	err := s.client.XGroupCreateMkStream(ctx, topic, s.cfg.GroupName, "$").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists; anything else is real.
		if err.Error() != "BUSYGROUP Consumer Group name already exists" {
			return err
		}
	}
	return nil
}

func (s *Subscriber) consumeLoop(ctx context.Context, topic string) {
	consumer := s.cfg.ConsumerTag
	if consumer == "" {
		consumer = "search-service-worker"
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    s.cfg.GroupName,
			Consumer: consumer,
			Streams:  []string{topic, ">"},
			Count:    50,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				s.log.Warn("bus read failed", zap.String("topic", topic), zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				s.handle(ctx, topic, msg)
			}
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, topic string, msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		s.log.Warn("bus message missing payload field", zap.String("topic", topic), zap.String("id", msg.ID))
		s.ack(ctx, topic, msg.ID)
		return
	}

	task, err := Decode(topic, []byte(payload))
	if err != nil {
		s.log.Warn("bus message decode failed",
			zap.String("topic", topic), zap.Error(err),
			zap.String("payload", redaction.RedactAll(payload)))
		s.ack(ctx, topic, msg.ID) // malformed payload will never succeed; ack to avoid poison-message loop
		return
	}

	sink := s.sinkFor(topic)
	if sink == nil {
		s.ack(ctx, topic, msg.ID)
		return
	}

	if sink.Enqueue(task) {
		s.ack(ctx, topic, msg.ID)
	}
	// else: leave unacked so the bus redelivers once back-pressure clears.
}

func (s *Subscriber) sinkFor(topic string) Sink {
	switch topic {
	case TopicNoteCreated, TopicNoteUpdated, TopicNoteDeleted, TopicNoteMetrics:
		return s.notesSink
	case TopicUserCreated, TopicUserUpdated, TopicUserDeleted, TopicUserMetrics:
		return s.usersSink
	}
	return nil
}

func (s *Subscriber) ack(ctx context.Context, topic, id string) {
	if err := s.client.XAck(ctx, topic, s.cfg.GroupName, id).Err(); err != nil {
		s.log.Warn("bus ack failed", zap.String("topic", topic), zap.String("id", id), zap.Error(err))
	}
}

// Decode maps a raw JSON payload on topic to an IndexingTask, per the
// event shapes in §6.
func Decode(topic string, payload []byte) (*model.IndexingTask, error) {
	switch topic {
	case TopicNoteCreated, TopicNoteUpdated:
		var n model.Note
		if err := json.Unmarshal(payload, &n); err != nil {
			return nil, err
		}
		op := model.OpCreate
		if topic == TopicNoteUpdated {
			op = model.OpUpdate
		}
		return &model.IndexingTask{ID: n.ID, DocType: model.DocumentNote, Op: op, Note: &n}, nil

	case TopicNoteDeleted:
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		return &model.IndexingTask{ID: body.ID, DocType: model.DocumentNote, Op: model.OpDelete, Note: &model.Note{ID: body.ID}}, nil

	case TopicNoteMetrics:
		var body struct {
			ID      string                   `json:"id"`
			Likes   int64                    `json:"likes"`
			Reposts int64                    `json:"reposts"`
			Replies int64                    `json:"replies"`
			Views   int64                    `json:"views"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		n := &model.Note{ID: body.ID, Metrics: model.EngagementMetrics{Likes: body.Likes, Reposts: body.Reposts, Replies: body.Replies, Views: body.Views}}
		return &model.IndexingTask{ID: body.ID, DocType: model.DocumentNote, Op: model.OpUpdateMetrics, Note: n}, nil

	case TopicUserCreated, TopicUserUpdated:
		var u model.User
		if err := json.Unmarshal(payload, &u); err != nil {
			return nil, err
		}
		op := model.OpCreate
		if topic == TopicUserUpdated {
			op = model.OpUpdate
		}
		return &model.IndexingTask{ID: u.ID, DocType: model.DocumentUser, Op: op, User: &u}, nil

	case TopicUserDeleted:
		var body struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		return &model.IndexingTask{ID: body.ID, DocType: model.DocumentUser, Op: model.OpDelete, User: &model.User{ID: body.ID}}, nil

	case TopicUserMetrics:
		var body struct {
			ID             string `json:"id"`
			FollowersCount int64  `json:"followers"`
			FollowingCount int64  `json:"following"`
			NotesCount     int64  `json:"notes_count"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, err
		}
		u := &model.User{ID: body.ID, FollowersCount: body.FollowersCount, FollowingCount: body.FollowingCount, NotesCount: body.NotesCount}
		return &model.IndexingTask{ID: body.ID, DocType: model.DocumentUser, Op: model.OpUpdateMetrics, User: u}, nil
	}
	return nil, fmt.Errorf("bus: unrecognized topic %q", topic)
}
