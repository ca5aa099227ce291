// internal/executor/motion.go
package executor

import (
	"image"
	"math"
	"math/rand/v2"
	"time"
)

// Fitts's law constants for pointer travel, in milliseconds.
const (
	fittsA           = 80.0
	fittsB           = 120.0
	fittsTargetWidth = 30.0
	maxMotionSteps   = 24
	minMotionSteps   = 4
)

// vec is a point or displacement in screen space.
type vec struct {
	X, Y float64
}

func vecOf(p image.Point) vec { return vec{X: float64(p.X), Y: float64(p.Y)} }

func (v vec) add(o vec) vec      { return vec{X: v.X + o.X, Y: v.Y + o.Y} }
func (v vec) sub(o vec) vec      { return vec{X: v.X - o.X, Y: v.Y - o.Y} }
func (v vec) mul(s float64) vec  { return vec{X: v.X * s, Y: v.Y * s} }
func (v vec) mag() float64       { return math.Hypot(v.X, v.Y) }
func (v vec) perp() vec          { return vec{X: -v.Y, Y: v.X} }
func (v vec) point() image.Point { return image.Pt(int(math.Round(v.X)), int(math.Round(v.Y))) }
func (v vec) dist(o vec) float64 { return v.sub(o).mag() }
func (v vec) normalize() vec {
	m := v.mag()
	if m < 1e-9 {
		return vec{}
	}
	return v.mul(1 / m)
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// fittsDuration estimates how long a person takes to travel distance pixels,
// with +/-15% jitter.
func fittsDuration(distance float64, rng *rand.Rand) time.Duration {
	id := math.Log2(1.0 + distance/fittsTargetWidth)
	mt := fittsA + fittsB*id
	if rng != nil {
		mt += mt * (rng.Float64()*0.3 - 0.15)
	}
	return time.Duration(mt * float64(time.Millisecond))
}

// curvedPath samples a cubic Bezier from start to end whose control points are
// pushed sideways by a random bow. Timing along the curve follows an
// ease-in-out profile. The last point is always end.
func curvedPath(start, end image.Point, rng *rand.Rand) []image.Point {
	p0, p3 := vecOf(start), vecOf(end)
	main := p3.sub(p0)
	dist := main.mag()
	if dist < 1 {
		return []image.Point{end}
	}

	steps := int(dist / 25)
	steps = max(minMotionSteps, min(maxMotionSteps, steps))

	dir := main.normalize()
	side := dir.perp()
	bow1, bow2 := 0.1, -0.05
	if rng != nil {
		bow1 = rng.Float64()*0.3 - 0.15
		bow2 = rng.Float64()*0.2 - 0.1
	}
	p1 := p0.add(dir.mul(dist / 3)).add(side.mul(dist * bow1))
	p2 := p0.add(dir.mul(dist * 2 / 3)).add(side.mul(dist * bow2))

	path := make([]image.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := easeInOutCubic(float64(i) / float64(steps))
		omt := 1 - t
		pt := p0.mul(omt * omt * omt).
			add(p1.mul(3 * omt * omt * t)).
			add(p2.mul(3 * omt * t * t)).
			add(p3.mul(t * t * t))
		path = append(path, pt.point())
	}
	path[len(path)-1] = end
	return path
}
