// Keywatch - Chat Keyword Monitoring and Solicitation Scoring
// Copyright 2026 The Keywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keywatch/keywatch

package monitor

import (
	"context"
	"sync"

	"github.com/keywatch/keywatch/internal/logging"
	"github.com/keywatch/keywatch/internal/metrics"
)

// Gate resolves a payload's category to its configured destinations and
// fans delivery out across all enabled notifiers. Each (destination,
// notifier) delivery is independent; one failure never blocks the rest.
// A category with no destinations is a silent no-op.
type Gate struct {
	config    ConfigSource
	notifiers []Notifier
}

// NewGate builds a dispatch gate over the given notifiers.
func NewGate(config ConfigSource, notifiers ...Notifier) *Gate {
	return &Gate{config: config, notifiers: notifiers}
}

// Notify delivers one payload to every destination of its category through
// every enabled notifier, waiting for all deliveries to finish.
func (g *Gate) Notify(ctx context.Context, payload *DispatchPayload) {
	destinations, err := g.config.Destinations(ctx, payload.Category)
	if err != nil {
		logging.Err(err).
			Str("category", payload.Category).
			Msg("Destination lookup failed, notification dropped")
		return
	}
	if len(destinations) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, notifier := range g.notifiers {
		if !notifier.Enabled() {
			continue
		}
		for _, destination := range destinations {
			wg.Add(1)
			go func(n Notifier, dest string) {
				defer wg.Done()
				if err := n.Send(ctx, dest, payload); err != nil {
					metrics.NotificationsSent.WithLabelValues(n.Name(), "error").Inc()
					logging.Err(err).
						Str("notifier", n.Name()).
						Str("destination", dest).
						Str("category", payload.Category).
						Msg("Notification delivery failed")
					return
				}
				metrics.NotificationsSent.WithLabelValues(n.Name(), "ok").Inc()
			}(notifier, destination)
		}
	}
	wg.Wait()
}

// QueueDispatcher is a bounded in-process queue between the synchronous
// pipeline and the gate. Enqueue never blocks; a full queue sheds the
// payload. Serve drains the queue until its context is cancelled, which
// makes it usable as a supervised service.
type QueueDispatcher struct {
	gate  *Gate
	queue chan *DispatchPayload
}

// NewQueueDispatcher builds a dispatcher with the given queue capacity.
// A non-positive size defaults to 256.
func NewQueueDispatcher(gate *Gate, size int) *QueueDispatcher {
	if size <= 0 {
		size = 256
	}
	return &QueueDispatcher{
		gate:  gate,
		queue: make(chan *DispatchPayload, size),
	}
}

// Enqueue implements Dispatcher.
func (d *QueueDispatcher) Enqueue(payload *DispatchPayload) bool {
	select {
	case d.queue <- payload:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.NotificationsSent.WithLabelValues("queue", "dropped").Inc()
		return false
	}
}

// Serve drains the queue, delivering each payload through the gate. It
// returns when ctx is cancelled, satisfying the suture service contract.
func (d *QueueDispatcher) Serve(ctx context.Context) error {
	logging.Info().Int("capacity", cap(d.queue)).Msg("Dispatch worker started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-d.queue:
			metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			d.gate.Notify(ctx, payload)
		}
	}
}

func (d *QueueDispatcher) String() string { return "dispatch-worker" }

var _ Dispatcher = (*QueueDispatcher)(nil)
