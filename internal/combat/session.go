package combat

import (
	"errors"
	"fmt"

	"github.com/MurkesM/ARPG/internal/event"
)

var (
	// ErrMissingAuthority is returned when a session is built without the
	// collaborator that decides attack starts and ends.
	ErrMissingAuthority = errors.New("combat: authority is required")
	// ErrInvalidTargets is returned for an unset allowed-target filter.
	ErrInvalidTargets = errors.New("combat: allowed targets must be set")
)

// Kind tags the attack that opened a window.
type Kind string

// KindPrimary is the basic melee swing.
const KindPrimary Kind = "primary"

// Config carries per-entity attack tuning.
type Config struct {
	Damage         int
	AllowedTargets AllowedTargets
	// WindowTicks is how long the active phase of a swing lasts before the
	// animation timer closes the window.
	WindowTicks uint64
}

// DefaultConfig mirrors the prototype tuning: 10 damage, players only.
func DefaultConfig() Config {
	return Config{
		Damage:         10,
		AllowedTargets: AllowPlayer,
		WindowTicks:    9,
	}
}

// Target is a candidate reported by the overlap collaborator.
type Target interface {
	EntityID() string
	Faction() Faction
	TryApplyHealthChange(delta int)
}

// Started is emitted when a window opens.
type Started struct {
	EntityID string
	Kind     Kind
}

// Ended is emitted when a window closes.
type Ended struct {
	EntityID string
	Kind     Kind
	Hits     int
}

// Hit is emitted after damage was requested for a target.
type Hit struct {
	AttackerID string
	TargetID   string
	Kind       Kind
	Damage     int
}

// Authority decides attack window transitions for a session.
type Authority interface {
	AuthorizeAttackStart(s *Session, kind Kind)
	AuthorizeAttackEnd(s *Session)
}

type standalone struct{}

func (standalone) AuthorizeAttackStart(s *Session, kind Kind) { s.ApplyAttackStart(kind) }
func (standalone) AuthorizeAttackEnd(s *Session)              { s.ApplyAttackEnd() }

// Standalone applies every request immediately.
var Standalone Authority = standalone{}

type hitKey struct {
	target string
	kind   Kind
}

// Window is the open-attack bookkeeping. A nil window means no attack.
type Window struct {
	Kind Kind
	hits map[hitKey]struct{}
}

// Session tracks the attack-in-progress state of one entity.
type Session struct {
	ownerID   string
	faction   Faction
	cfg       Config
	authority Authority
	window    *Window

	started event.List[Started]
	ended   event.List[Ended]
	hit     event.List[Hit]
}

// NewSession constructs an idle session.
func NewSession(ownerID string, faction Faction, cfg Config, authority Authority) (*Session, error) {
	if authority == nil {
		return nil, fmt.Errorf("session %q: %w", ownerID, ErrMissingAuthority)
	}
	if cfg.AllowedTargets == 0 {
		return nil, fmt.Errorf("session %q: %w", ownerID, ErrInvalidTargets)
	}
	return &Session{ownerID: ownerID, faction: faction, cfg: cfg, authority: authority}, nil
}

// OwnerID returns the attacking entity identifier.
func (s *Session) OwnerID() string { return s.ownerID }

// Faction returns the attacker's side.
func (s *Session) Faction() Faction { return s.faction }

// Config returns the session tuning.
func (s *Session) Config() Config { return s.cfg }

// IsAttacking reports whether a window is open.
func (s *Session) IsAttacking() bool { return s != nil && s.window != nil }

// CurrentKind returns the kind of the open window, or "" when idle.
func (s *Session) CurrentKind() Kind {
	if s == nil || s.window == nil {
		return ""
	}
	return s.window.Kind
}

// HitCount returns the number of distinct targets damaged in the open window.
func (s *Session) HitCount() int {
	if s == nil || s.window == nil {
		return 0
	}
	return len(s.window.hits)
}

// PrimaryAttack requests a new primary attack. It is a no-op while a window
// is already open.
func (s *Session) PrimaryAttack() {
	if s == nil || s.window != nil {
		return
	}
	s.authority.AuthorizeAttackStart(s, KindPrimary)
}

// OnAttackWindowEnd is invoked by the animation timer when the active phase
// ends. Repeated calls without an open window are ignored.
func (s *Session) OnAttackWindowEnd() {
	if s == nil || s.window == nil {
		return
	}
	s.authority.AuthorizeAttackEnd(s)
}

// ApplyAttackStart opens a window with an empty hit-record. It reports
// whether a window was opened.
func (s *Session) ApplyAttackStart(kind Kind) bool {
	if s == nil || s.window != nil {
		return false
	}
	if kind == "" {
		kind = KindPrimary
	}
	s.window = &Window{Kind: kind, hits: make(map[hitKey]struct{})}
	s.started.Emit(Started{EntityID: s.ownerID, Kind: kind})
	return true
}

// ApplyAttackEnd closes the open window and discards its hit-record.
func (s *Session) ApplyAttackEnd() bool {
	if s == nil || s.window == nil {
		return false
	}
	closed := s.window
	s.window = nil
	s.ended.Emit(Ended{EntityID: s.ownerID, Kind: closed.Kind, Hits: len(closed.hits)})
	return true
}

// RegisterHit handles an overlap report. The target is damaged at most once
// per window; it reports whether damage was requested.
func (s *Session) RegisterHit(target Target) bool {
	if s == nil || s.window == nil || target == nil {
		return false
	}
	id := target.EntityID()
	if id == "" || id == s.ownerID {
		return false
	}
	if !s.cfg.AllowedTargets.Allows(target.Faction()) {
		return false
	}
	key := hitKey{target: id, kind: s.window.Kind}
	if _, seen := s.window.hits[key]; seen {
		return false
	}
	s.window.hits[key] = struct{}{}
	target.TryApplyHealthChange(-s.cfg.Damage)
	s.hit.Emit(Hit{AttackerID: s.ownerID, TargetID: id, Kind: key.kind, Damage: s.cfg.Damage})
	return true
}

// OnAttackStarted subscribes to window opens.
func (s *Session) OnAttackStarted(fn func(Started)) event.Subscription {
	return s.started.Subscribe(fn)
}

// OnAttackEnded subscribes to window closes.
func (s *Session) OnAttackEnded(fn func(Ended)) event.Subscription {
	return s.ended.Subscribe(fn)
}

// StopAttackEnded removes a listener registered through OnAttackEnded.
func (s *Session) StopAttackEnded(id event.Subscription) {
	s.ended.Unsubscribe(id)
}

// OnHit subscribes to registered hits.
func (s *Session) OnHit(fn func(Hit)) event.Subscription {
	return s.hit.Subscribe(fn)
}

// Close tears down subscriptions when the owner is destroyed.
func (s *Session) Close() {
	s.started.Close()
	s.ended.Close()
	s.hit.Close()
}
