// Package subscriber drains the broker channel, dispatching each frame by
// method: full-object announces apply directly to the registry, unpublish
// announces evict a replica, and fine-grained event batches are handed to
// the event pipeline for atomic, per-object application.
package subscriber

import (
	"context"
	"log"
	"time"

	"sapphire-kv/internal/fabric"
	"sapphire-kv/internal/observability"
	"sapphire-kv/internal/pipeline"
	"sapphire-kv/internal/transport"
	"sapphire-kv/internal/wire"
)

const resubscribeDelay = 4 * time.Second

// RequestObjectsSender is implemented by internal/publisher.Publisher.
type RequestObjectsSender interface {
	RequestObjects(ctx context.Context)
}

// Subscriber owns the single consumer of the broker channel.
type Subscriber struct {
	reg        *fabric.Registry
	broker     transport.Broker
	channel    string
	dispatcher *pipeline.Dispatcher
	requester  RequestObjectsSender
	logger     *log.Logger
}

// New constructs a Subscriber. requester sends a request_objects frame,
// asking every peer to re-announce its objects, on every (re-)subscribe.
func New(reg *fabric.Registry, broker transport.Broker, channel string, dispatcher *pipeline.Dispatcher, requester RequestObjectsSender, logger *log.Logger) *Subscriber {
	if logger == nil {
		logger = log.New(log.Writer(), "[subscriber] ", log.LstdFlags)
	}
	return &Subscriber{reg: reg, broker: broker, channel: channel, dispatcher: dispatcher, requester: requester, logger: logger}
}

// Run owns the resubscribe loop: each time a subscription is established it
// requests a full re-announce round-trip, then dispatches frames until the
// subscription drops, at which point it waits resubscribeDelay and tries
// again. Returns when ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) {
	for ctx.Err() == nil {
		raw, err := s.broker.Subscribe(ctx, s.channel)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Printf("subscribe failed, retrying in %s: %v", resubscribeDelay, err)
			select {
			case <-time.After(resubscribeDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		if s.requester != nil {
			s.requester.RequestObjects(ctx)
		}
		s.drain(raw)
		if ctx.Err() != nil {
			return
		}
		s.logger.Printf("subscription ended, resubscribing in %s", resubscribeDelay)
		select {
		case <-time.After(resubscribeDelay):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscriber) drain(raw <-chan []byte) {
	for payload := range raw {
		s.handle(payload)
	}
}

func (s *Subscriber) handle(payload []byte) {
	frame, err := wire.DecodeFrame(payload)
	if err != nil {
		observability.RecordFrameDecodeError()
		s.logger.Printf("dropping malformed frame: %v", err)
		return
	}
	if frame.OriginID == s.reg.LocalOrigin().ID {
		return
	}

	switch frame.Method {
	case wire.MethodPublish:
		s.handlePublish(frame)
	case wire.MethodEvents:
		s.handleEvents(frame)
	case wire.MethodDelete:
		s.handleDelete(frame)
	case wire.MethodRequestObjects:
		s.handleRequestObjects()
	default:
		s.logger.Printf("ignoring unknown method %q", frame.Method)
	}
}

func (s *Subscriber) handlePublish(frame wire.Frame) {
	id, collection, dict, err := wire.DecodePublish(frame.Data)
	if err != nil {
		s.logger.Printf("dropping malformed publish frame: %v", err)
		return
	}
	s.reg.UpsertReplica(id, collection, frame.OriginID, dict)
}

func (s *Subscriber) handleEvents(frame wire.Frame) {
	id, events, err := wire.DecodeEvents(frame.Data)
	if err != nil {
		s.logger.Printf("dropping malformed events frame: %v", err)
		return
	}
	s.dispatcher.Dispatch(id, frame.OriginID, events)
}

func (s *Subscriber) handleDelete(frame wire.Frame) {
	id, err := wire.DecodeDelete(frame.Data)
	if err != nil {
		s.logger.Printf("dropping malformed delete frame: %v", err)
		return
	}
	s.reg.ApplyRemoteDelete(id)
}

func (s *Subscriber) handleRequestObjects() {
	for _, o := range s.reg.All() {
		if o.IsOriginator() {
			s.reg.EnqueuePublish(o)
		}
	}
}
