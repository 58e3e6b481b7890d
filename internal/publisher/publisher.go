// Package publisher drains the registry's outbound queues and renders them
// onto the broker channel.
package publisher

import (
	"context"
	"log"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/transport"
	"sapphire-kv/internal/wire"
)

// Publisher is the sole writer onto the broker channel.
type Publisher struct {
	reg     *fabric.Registry
	broker  transport.Broker
	channel string
	logger  *log.Logger
}

// New constructs a Publisher over reg, writing to channel via broker.
func New(reg *fabric.Registry, broker transport.Broker, channel string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.New(log.Writer(), "[publisher] ", log.LstdFlags)
	}
	return &Publisher{reg: reg, broker: broker, channel: channel, logger: logger}
}

// Run drains publish/event/delete announces until ctx is canceled.
func (p *Publisher) Run(ctx context.Context) {
	originID := p.reg.LocalOrigin().ID
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-p.reg.Publishes():
			p.send(ctx, func() ([]byte, error) {
				return wire.EncodePublish(originID, o.ToDict())
			})
		case batch := <-p.reg.Events():
			p.send(ctx, func() ([]byte, error) {
				return wire.EncodeEvents(originID, batch)
			})
		case id := <-p.reg.Deletes():
			p.send(ctx, func() ([]byte, error) {
				return wire.EncodeDelete(originID, id)
			})
		}
	}
}

// Drain does a single non-blocking pass over every outbound queue, used by
// lifecycle.Controller.Stop to best-effort flush unpublish announces before
// canceling the Publisher's Run goroutine.
func (p *Publisher) Drain(ctx context.Context) {
	originID := p.reg.LocalOrigin().ID
	for {
		select {
		case o := <-p.reg.Publishes():
			p.send(ctx, func() ([]byte, error) { return wire.EncodePublish(originID, o.ToDict()) })
		case batch := <-p.reg.Events():
			p.send(ctx, func() ([]byte, error) { return wire.EncodeEvents(originID, batch) })
		case id := <-p.reg.Deletes():
			p.send(ctx, func() ([]byte, error) { return wire.EncodeDelete(originID, id) })
		default:
			return
		}
	}
}

// RequestObjects asks every peer to re-announce their full object set,
// matching the round-trip original_source performs on every (re-)subscribe.
func (p *Publisher) RequestObjects(ctx context.Context) {
	p.send(ctx, func() ([]byte, error) {
		return wire.EncodeRequestObjects(p.reg.LocalOrigin().ID)
	})
}

func (p *Publisher) send(ctx context.Context, encode func() ([]byte, error)) {
	payload, err := encode()
	if err != nil {
		p.logger.Printf("encode failed: %v", err)
		return
	}
	if err := p.broker.Publish(ctx, p.channel, payload); err != nil && ctx.Err() == nil {
		p.logger.Printf("publish failed: %v", err)
	}
}
