package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phone-auth-service/internal/models"
)

const defaultSinkTimeout = 2 * time.Second

type EventSink interface {
	Name() string
	Record(ctx context.Context, event *models.AuthEvent) error
}

// EventPublisher fans an event out to every sink. Sink failures are logged
// and never surface to the caller.
type EventPublisher struct {
	sinks   []EventSink
	timeout time.Duration
	logger  *zap.Logger
}

func NewEventPublisher(logger *zap.Logger, sinks ...EventSink) *EventPublisher {
	return &EventPublisher{
		sinks:   sinks,
		timeout: defaultSinkTimeout,
		logger:  logger,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event *models.AuthEvent) {
	if p == nil || len(p.sinks) == 0 {
		return
	}

	// Detached from the request so a client disconnect does not drop audit records.
	sinkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	var g errgroup.Group
	for _, sink := range p.sinks {
		sink := sink
		g.Go(func() error {
			if err := sink.Record(sinkCtx, event); err != nil {
				p.logger.Error("Failed to record auth event",
					zap.String("sink", sink.Name()),
					zap.String("event_type", string(event.Type)),
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}
