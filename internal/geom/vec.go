package geom

import "math"

// Vec2 represents a point or direction on the ground plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

// Sub returns v-o.
func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

// Scale multiplies both components by s.
func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Dot returns the dot product of v and o.
func (v Vec2) Dot(o Vec2) float64 {
	return v.X*o.X + v.Y*o.Y
}

// Len returns the euclidean length of v.
func (v Vec2) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// IsZero reports whether both components are zero.
func (v Vec2) IsZero() bool {
	return v.X == 0 && v.Y == 0
}

// Normalize returns the unit vector pointing along v, or the zero vector when
// v has no length.
func (v Vec2) Normalize() Vec2 {
	length := v.Len()
	if length == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / length, Y: v.Y / length}
}

// Distance returns the distance between a and b.
func Distance(a, b Vec2) float64 {
	return b.Sub(a).Len()
}

// Heading converts a direction into a yaw angle in radians.
func Heading(dir Vec2) float64 {
	return math.Atan2(dir.Y, dir.X)
}

// FromHeading converts a yaw angle in radians into a unit direction.
func FromHeading(yaw float64) Vec2 {
	return Vec2{X: math.Cos(yaw), Y: math.Sin(yaw)}
}

// AngleBetween returns the unsigned angle between a and b in degrees. Zero
// length inputs yield 0.
func AngleBetween(a, b Vec2) float64 {
	na := a.Normalize()
	nb := b.Normalize()
	if na.IsZero() || nb.IsZero() {
		return 0
	}
	cos := na.Dot(nb)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return math.Acos(cos) * 180 / math.Pi
}

// MoveTowards advances current toward target by at most maxStep without
// overshooting.
func MoveTowards(current, target Vec2, maxStep float64) Vec2 {
	delta := target.Sub(current)
	dist := delta.Len()
	if dist <= maxStep || dist == 0 {
		return target
	}
	return current.Add(delta.Scale(maxStep / dist))
}

// WrapAngle folds an angle in radians into (-pi, pi].
// Angles already in range are returned unchanged.
func WrapAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a-math.Pi, 2*math.Pi)
	if a > 0 {
		a -= 2 * math.Pi
	}
	return a + math.Pi
}

// RotateTowards turns current toward target (both radians) by at most
// maxStep radians along the shortest arc.
func RotateTowards(current, target, maxStep float64) float64 {
	diff := WrapAngle(target - current)
	if math.Abs(diff) <= maxStep {
		return WrapAngle(target)
	}
	if diff > 0 {
		return WrapAngle(current + maxStep)
	}
	return WrapAngle(current - maxStep)
}

// LerpAngle interpolates from current toward target along the shortest arc.
// t is clamped to [0,1].
func LerpAngle(current, target, t float64) float64 {
	if t <= 0 {
		return current
	}
	if t > 1 {
		t = 1
	}
	return WrapAngle(current + WrapAngle(target-current)*t)
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}
