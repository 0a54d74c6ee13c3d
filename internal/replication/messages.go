package replication

import (
	"github.com/MurkesM/ARPG/internal/character"
	"github.com/MurkesM/ARPG/internal/combat"
	"github.com/MurkesM/ARPG/internal/geom"
)

// ProtocolVersion is stamped on every envelope.
const ProtocolVersion = 1

// MessageType discriminates envelopes.
type MessageType string

const (
	TypeRequest  MessageType = "request"
	TypeApplied  MessageType = "applied"
	TypeSnapshot MessageType = "snapshot"
)

// Kind names a replicated change.
type Kind string

const (
	KindHealth      Kind = "health"
	KindAttackStart Kind = "attack_start"
	KindAttackEnd   Kind = "attack_end"
	KindSpawn       Kind = "spawn"
	KindDespawn     Kind = "despawn"
	KindMove        Kind = "move"
)

// Request asks the authority to decide a change.
type Request struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	EntityID    string         `json:"entityId"`
	Delta       int            `json:"delta,omitempty"`
	AttackKind  combat.Kind    `json:"attackKind,omitempty"`
	Destination *geom.Vec2     `json:"destination,omitempty"`
	Faction     combat.Faction `json:"faction,omitempty"`
	Position    *geom.Vec2     `json:"position,omitempty"`
	Facing      float64        `json:"facing,omitempty"`
}

// Applied is the result the authority decided. Observers mirror it verbatim.
type Applied struct {
	RequestID  string           `json:"requestId,omitempty"`
	Kind       Kind             `json:"kind"`
	EntityID   string           `json:"entityId"`
	Tick       uint64           `json:"tick"`
	Delta      int              `json:"delta,omitempty"`
	Health     int              `json:"health,omitempty"`
	AttackKind combat.Kind      `json:"attackKind,omitempty"`
	Position   *geom.Vec2       `json:"position,omitempty"`
	Facing     float64          `json:"facing,omitempty"`
	State      *character.State `json:"state,omitempty"`
}

// Snapshot is the full authoritative state at Seq.
type Snapshot struct {
	Tick       uint64            `json:"tick"`
	Characters []character.State `json:"characters"`
}

// Envelope frames every message on the wire.
type Envelope struct {
	Ver      int         `json:"ver"`
	Type     MessageType `json:"type"`
	Seq      uint64      `json:"seq,omitempty"`
	Request  *Request    `json:"request,omitempty"`
	Applied  *Applied    `json:"applied,omitempty"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
}

// RequestEnvelope wraps a request.
func RequestEnvelope(req Request) Envelope {
	return Envelope{Ver: ProtocolVersion, Type: TypeRequest, Request: &req}
}

// Subscriber receives envelopes from the authority in send order. Deliver
// must not block the tick goroutine.
type Subscriber interface {
	Deliver(env Envelope)
}

// SubscriberFunc adapts a function into a Subscriber.
type SubscriberFunc func(env Envelope)

// Deliver implements Subscriber.
func (f SubscriberFunc) Deliver(env Envelope) {
	if f == nil {
		return
	}
	f(env)
}

// Uplink carries observer requests to the authority.
type Uplink interface {
	SendRequest(req Request) error
}

// UplinkFunc adapts a function into an Uplink.
type UplinkFunc func(req Request) error

// SendRequest implements Uplink.
func (f UplinkFunc) SendRequest(req Request) error {
	if f == nil {
		return nil
	}
	return f(req)
}
