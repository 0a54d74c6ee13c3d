package spatial

import (
	"math"

	"github.com/MurkesM/ARPG/internal/geom"
)

// Rectangle represents an axis-aligned obstacle.
type Rectangle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CircleRectOverlap reports whether a circle intersects the rectangle.
func CircleRectOverlap(center geom.Vec2, radius float64, rect Rectangle) bool {
	closestX := clamp(center.X, rect.X, rect.X+rect.Width)
	closestY := clamp(center.Y, rect.Y, rect.Y+rect.Height)
	dx := center.X - closestX
	dy := center.Y - closestY
	return dx*dx+dy*dy < radius*radius
}

// rayRect returns the entry distance of a ray into rect using the slab test.
func rayRect(origin, dir geom.Vec2, rect Rectangle) (float64, bool) {
	tMin := 0.0
	tMax := math.Inf(1)
	for axis := 0; axis < 2; axis++ {
		o, d, lo, hi := origin.X, dir.X, rect.X, rect.X+rect.Width
		if axis == 1 {
			o, d, lo, hi = origin.Y, dir.Y, rect.Y, rect.Y+rect.Height
		}
		if math.Abs(d) < 1e-12 {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1 := (lo - o) / d
		t2 := (hi - o) / d
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, false
		}
	}
	return tMin, true
}

// rayCircle returns the entry distance of a unit ray into a circle. A ray
// starting inside the circle hits it at distance zero.
func rayCircle(origin, dir, center geom.Vec2, radius float64) (float64, bool) {
	oc := origin.Sub(center)
	c := oc.Dot(oc) - radius*radius
	if c <= 0 {
		return 0, true
	}
	b := oc.Dot(dir)
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	t := -b - math.Sqrt(disc)
	if t < 0 {
		return 0, false
	}
	return t, true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
