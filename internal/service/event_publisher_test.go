package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"phone-auth-service/internal/models"
)

type recordingSink struct {
	name string
	err  error

	mu     sync.Mutex
	events []*models.AuthEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(ctx context.Context, event *models.AuthEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) types() []models.AuthEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuthEventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}

func (s *recordingSink) byType(typ models.AuthEventType) []*models.AuthEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.AuthEvent
	for _, e := range s.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestEventPublisher_FailingSinkDoesNotBlockOthers(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	p := NewEventPublisher(zap.NewNop(), bad, good)

	p.Publish(context.Background(), &models.AuthEvent{ID: "e1", Type: models.EventLogin})

	if len(good.events) != 1 || len(bad.events) != 1 {
		t.Errorf("recorded good=%d bad=%d, want 1 each", len(good.events), len(bad.events))
	}
}

func TestEventPublisher_CanceledRequestStillRecords(t *testing.T) {
	sink := &recordingSink{name: "sink"}
	p := NewEventPublisher(zap.NewNop(), sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var seen error
	p.sinks = []EventSink{sinkFunc(func(ctx context.Context, e *models.AuthEvent) error {
		seen = ctx.Err()
		return sink.Record(ctx, e)
	})}
	p.Publish(ctx, &models.AuthEvent{ID: "e1", Type: models.EventLoginError})

	if seen != nil {
		t.Errorf("sink context err = %v, want nil", seen)
	}
	if len(sink.events) != 1 {
		t.Errorf("recorded %d events, want 1", len(sink.events))
	}
}

func TestEventPublisher_NilIsNoop(t *testing.T) {
	var p *EventPublisher
	p.Publish(context.Background(), &models.AuthEvent{ID: "e1"})
}

type sinkFunc func(ctx context.Context, e *models.AuthEvent) error

func (f sinkFunc) Name() string { return "func" }

func (f sinkFunc) Record(ctx context.Context, e *models.AuthEvent) error { return f(ctx, e) }
