package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/remote-connectors/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// GlobalSubject overrides connectors.called.
	GlobalSubject string
}

// CommsPublisher publishes call events to COMMS.
type CommsPublisher struct {
	nc            *comms.Conn
	globalSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	global := commsutil.SubjectCalled
	if opts != nil && opts.GlobalSubject != "" {
		global = opts.GlobalSubject
	}
	return &CommsPublisher{nc: nc, globalSubject: global}
}

// PublishCalled publishes event to its per-method subject and to the global subject.
func (p *CommsPublisher) PublishCalled(_ context.Context, event *CallEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildCallSubject(event.Connector, event.Method)
	for _, s := range []string{subject, p.globalSubject} {
		if err := p.nc.Publish(s, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, s, err))
			return err
		}
	}
	return nil
}
