// Package pubsub builds the watermill transport behind the job queues.
package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/gettakaro/takaro-worker/config"
)

const (
	DriverGoChannel = "gochannel"
	DriverAMQP      = "amqp"
)

// Provider owns the publisher/subscriber pair for the configured driver.
type Provider interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Close() error
}

type goChannelProvider struct {
	ch *gochannel.GoChannel
}

func (p *goChannelProvider) Publisher() message.Publisher   { return p.ch }
func (p *goChannelProvider) Subscriber() message.Subscriber { return p.ch }
func (p *goChannelProvider) Close() error                   { return p.ch.Close() }

type amqpProvider struct {
	pub *amqp.Publisher
	sub *amqp.Subscriber
}

func (p *amqpProvider) Publisher() message.Publisher   { return p.pub }
func (p *amqpProvider) Subscriber() message.Subscriber { return p.sub }
func (p *amqpProvider) Close() error {
	perr := p.pub.Close()
	serr := p.sub.Close()
	if perr != nil {
		return perr
	}
	return serr
}

// NewProvider builds the in-process or the broker-backed transport.
//
// [GOCHANNEL] jobs live only in this process; good for a single worker.
// [AMQP] durable queues named after the topic; competing consumers across workers.
func NewProvider(cfg *config.Config, logger watermill.LoggerAdapter) (Provider, error) {
	switch cfg.PubSub.Driver {
	case DriverGoChannel, "":
		return NewGoChannelProvider(logger), nil
	case DriverAMQP:
		amqpCfg := amqp.NewDurableQueueConfig(cfg.PubSub.AMQPURI)
		pub, err := amqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("amqp publisher: %w", err)
		}
		sub, err := amqp.NewSubscriber(amqpCfg, logger)
		if err != nil {
			_ = pub.Close()
			return nil, fmt.Errorf("amqp subscriber: %w", err)
		}
		return &amqpProvider{pub: pub, sub: sub}, nil
	default:
		return nil, fmt.Errorf("pubsub: unknown driver %q", cfg.PubSub.Driver)
	}
}

// NewGoChannelProvider is exported for tests that need a real in-memory queue.
func NewGoChannelProvider(logger watermill.LoggerAdapter) Provider {
	return &goChannelProvider{
		ch: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 1024,
		}, logger),
	}
}
