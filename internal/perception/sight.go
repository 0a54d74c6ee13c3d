package perception

import (
	"errors"

	"github.com/MurkesM/ARPG/internal/geom"
)

// ErrMissingVisibility is returned when an entity that needs line of sight is
// built without a visibility query.
var ErrMissingVisibility = errors.New("perception: visibility query is required")

// SightConfig bounds the forward vision cone.
type SightConfig struct {
	// ConeAngle is the full cone width in degrees.
	ConeAngle        float64
	MaxSightDistance float64
}

// DefaultSightConfig returns a 90 degree cone reaching 10 units.
func DefaultSightConfig() SightConfig {
	return SightConfig{ConeAngle: 90, MaxSightDistance: 10}
}

// VisibilityQuery is the read-only oracle that reports the nearest blocking
// hit along a ray cast by viewerID. The viewer itself is never reported. ok is
// false when nothing was hit.
type VisibilityQuery interface {
	Raycast(viewerID string, origin, dir geom.Vec2, maxDistance float64) (hitID string, ok bool)
}

// VisibilityFunc adapts a function into a VisibilityQuery.
type VisibilityFunc func(viewerID string, origin, dir geom.Vec2, maxDistance float64) (string, bool)

// Raycast implements VisibilityQuery.
func (f VisibilityFunc) Raycast(viewerID string, origin, dir geom.Vec2, maxDistance float64) (string, bool) {
	if f == nil {
		return "", false
	}
	return f(viewerID, origin, dir, maxDistance)
}

// Viewer is the entity looking.
type Viewer struct {
	ID       string
	Position geom.Vec2
	// Yaw is the facing in radians.
	Yaw float64
}

// Sighting is the evaluated relation between a viewer and its target.
type Sighting struct {
	Distance  float64
	Direction geom.Vec2
	Angle     float64
	Visible   bool
}

// Evaluate computes distance, direction and line of sight from viewer toward
// the target. The visibility query is only consulted once the cone and
// distance gates pass.
func Evaluate(cfg SightConfig, query VisibilityQuery, viewer Viewer, targetID string, target geom.Vec2) Sighting {
	delta := target.Sub(viewer.Position)
	out := Sighting{Distance: delta.Len(), Direction: delta.Normalize()}
	out.Angle = geom.AngleBetween(geom.FromHeading(viewer.Yaw), delta)

	if out.Angle > cfg.ConeAngle/2 || out.Distance > cfg.MaxSightDistance {
		return out
	}
	if query == nil {
		return out
	}
	hitID, ok := query.Raycast(viewer.ID, viewer.Position, out.Direction, cfg.MaxSightDistance)
	out.Visible = ok && hitID == targetID
	return out
}

// LineOfSight reports whether the target is inside the cone, within range and
// the nearest hit along the ray.
func LineOfSight(cfg SightConfig, query VisibilityQuery, viewer Viewer, targetID string, target geom.Vec2) bool {
	return Evaluate(cfg, query, viewer, targetID, target).Visible
}
