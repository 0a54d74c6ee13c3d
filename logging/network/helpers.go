package network

import (
	"context"

	"github.com/MurkesM/ARPG/logging"
)

const (
	// EventObserverConnected is emitted when an observer subscribes.
	EventObserverConnected logging.EventType = "network.observer_connected"
	// EventObserverDisconnected is emitted when an observer goes away.
	EventObserverDisconnected logging.EventType = "network.observer_disconnected"
	// EventMessageDropped is emitted when a replication message is discarded.
	EventMessageDropped logging.EventType = "network.message_dropped"
)

// ObserverPayload describes an observer connection change.
type ObserverPayload struct {
	Reason string `json:"reason,omitempty"`
}

// DroppedPayload describes why a message was discarded.
type DroppedPayload struct {
	Kind     string `json:"kind"`
	EntityID string `json:"entityId,omitempty"`
	Reason   string `json:"reason"`
	Seq      uint64 `json:"seq,omitempty"`
}

// ObserverConnected publishes a subscribe event.
func ObserverConnected(ctx context.Context, pub logging.Publisher, tick uint64, observer string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverConnected,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: observer, Kind: logging.EntityKindNode},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
	})
}

// ObserverDisconnected publishes an unsubscribe event.
func ObserverDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, observer string, reason string) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventObserverDisconnected,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: observer, Kind: logging.EntityKindNode},
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  ObserverPayload{Reason: reason},
	})
}

// MessageDropped publishes a discarded replication message at debug.
func MessageDropped(ctx context.Context, pub logging.Publisher, tick uint64, node string, payload DroppedPayload) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventMessageDropped,
		Tick:     tick,
		Actor:    logging.EntityRef{ID: node, Kind: logging.EntityKindNode},
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
	})
}
