package job

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Transport is a publisher and subscriber pair
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

// Close closes publisher and subscriber
func (t *Transport) Close() error {
	var firstErr error
	for _, c := range t.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewLocalTransport returns an in-process transport
func NewLocalTransport(bufferSize int64, logger watermill.LoggerAdapter) *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: bufferSize,
	}, logger)

	return &Transport{
		Publisher:  ch,
		Subscriber: ch,
		closers:    []func() error{ch.Close},
	}
}

// NewAMQPPublisher returns a publish-only transport on durable AMQP queues.
// Subscriber is nil.
func NewAMQPPublisher(url string, logger watermill.LoggerAdapter) (*Transport, error) {
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(url), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}
	return publisherOnly(publisher), nil
}

func publisherOnly(publisher message.Publisher) *Transport {
	return &Transport{
		Publisher: publisher,
		closers:   []func() error{publisher.Close},
	}
}

// NewAMQPTransport returns a transport backed by durable AMQP queues
func NewAMQPTransport(url string, logger watermill.LoggerAdapter) (*Transport, error) {
	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(url), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create amqp publisher: %w", err)
	}

	subscriberConfig := amqp.NewDurableQueueConfig(url)
	subscriberConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		publisher.Close()
		return nil, fmt.Errorf("failed to create amqp subscriber: %w", err)
	}

	return &Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
		closers:    []func() error{publisher.Close, subscriber.Close},
	}, nil
}
