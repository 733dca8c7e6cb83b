package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"shelf/src/core/querycache"
)

// TouchPublisher hands cache touches to the message bus. It implements
// querycache.Toucher so the cache can use it in place of the store.
type TouchPublisher struct {
	publisher message.Publisher
	logger    watermill.LoggerAdapter
}

func NewTouchPublisher(publisher message.Publisher, logger watermill.LoggerAdapter) *TouchPublisher {
	return &TouchPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// Touch publishes a touch message for queryHash
func (p *TouchPublisher) Touch(ctx context.Context, queryHash string, usedAt time.Time) error {
	payload, err := json.Marshal(TouchMessage{QueryHash: queryHash, UsedAt: usedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal touch message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := p.publisher.Publish(TouchTopic, msg); err != nil {
		return fmt.Errorf("failed to publish touch message: %w", err)
	}
	return nil
}

// TouchProcessor applies touch messages to the cache store
type TouchProcessor struct {
	store   querycache.Toucher
	logger  watermill.LoggerAdapter
	timeout time.Duration
}

func NewTouchProcessor(store querycache.Toucher, logger watermill.LoggerAdapter, timeout time.Duration) *TouchProcessor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TouchProcessor{
		store:   store,
		logger:  logger,
		timeout: timeout,
	}
}

// ProcessTouchMessage processes a touch message from the queue
func (p *TouchProcessor) ProcessTouchMessage(msg *message.Message) error {
	var touch TouchMessage
	if err := json.Unmarshal(msg.Payload, &touch); err != nil {
		// a malformed message will never succeed, drop it
		p.logger.Error("Dropping malformed touch message", err, watermill.LogFields{
			"message_uuid": msg.UUID,
		})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.store.Touch(ctx, touch.QueryHash, touch.UsedAt); err != nil {
		return fmt.Errorf("failed to touch %s: %w", touch.QueryHash, err)
	}

	p.logger.Trace("Cache entry touched", watermill.LogFields{
		"query_hash": touch.QueryHash,
	})
	return nil
}

// NewTouchRouter builds a router that feeds messages from subscriber into
// processor, retrying transient store failures.
func NewTouchRouter(subscriber message.Subscriber, processor *TouchProcessor, logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			Logger:          logger,
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		"query_cache_touch",
		TouchTopic,
		subscriber,
		processor.ProcessTouchMessage,
	)

	return router, nil
}
