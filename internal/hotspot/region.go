package hotspot

import (
	"github.com/pkg/errors"
)

// Shape kinds.
const (
	TypeRect = "rect"
	TypePoly = "poly"
)

// Point is an integer screen coordinate, encoded as [x, y].
type Point [2]int

// X returns the horizontal coordinate.
func (p Point) X() int { return p[0] }

// Y returns the vertical coordinate.
func (p Point) Y() int { return p[1] }

// Region is one UI overlay entry.
type Region struct {
	Type        string  `json:"type" yaml:"type"`
	Points      []Point `json:"pts" yaml:"pts"`
	Description string  `json:"description" yaml:"description"`
}

// Equal reports whether two regions have identical content.
func (r Region) Equal(other Region) bool {
	if r.Type != other.Type || r.Description != other.Description || len(r.Points) != len(other.Points) {
		return false
	}
	for i := range r.Points {
		if r.Points[i] != other.Points[i] {
			return false
		}
	}
	return true
}

// Validate checks that the region is a simple polygon with at least three
// points, and that a rect is exactly four axis-aligned corners.
func (r Region) Validate() error {
	if r.Type != TypeRect && r.Type != TypePoly {
		return errors.Errorf("unknown region type %q", r.Type)
	}
	n := len(r.Points)
	if n < 3 {
		return errors.Errorf("%d points, need at least 3", n)
	}
	if r.Type == TypeRect {
		if n != 4 {
			return errors.Errorf("rect has %d points, need 4", n)
		}
		for i := range r.Points {
			a, b := r.Points[i], r.Points[(i+1)%n]
			if a.X() != b.X() && a.Y() != b.Y() {
				return errors.Errorf("rect edge %v-%v is not axis-aligned", a, b)
			}
			if a == b {
				return errors.Errorf("rect has repeated corner %v", a)
			}
		}
	}

	for i := 0; i < n; i++ {
		a1, a2 := r.Points[i], r.Points[(i+1)%n]
		if a1 == a2 {
			return errors.Errorf("degenerate edge at point %d", i)
		}
		for j := i + 1; j < n; j++ {
			// Adjacent edges share a vertex.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := r.Points[j], r.Points[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return errors.Errorf("edges %d and %d intersect", i, j)
			}
		}
	}
	if area2(r.Points) == 0 {
		return errors.New("region has zero area")
	}
	return nil
}

// Contains reports whether p lies inside the region or on its boundary.
func (r Region) Contains(p Point) bool {
	n := len(r.Points)
	if n < 3 {
		return false
	}
	if r.Type == TypeRect {
		minX, maxX := r.Points[0].X(), r.Points[0].X()
		minY, maxY := r.Points[0].Y(), r.Points[0].Y()
		for _, q := range r.Points[1:] {
			minX, maxX = min(minX, q.X()), max(maxX, q.X())
			minY, maxY = min(minY, q.Y()), max(maxY, q.Y())
		}
		return p.X() >= minX && p.X() <= maxX && p.Y() >= minY && p.Y() <= maxY
	}

	// Ray casting to +x; boundary points count as inside.
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := r.Points[i], r.Points[j]
		if onSegment(a, b, p) {
			return true
		}
		if (a.Y() > p.Y()) != (b.Y() > p.Y()) {
			// x of the edge at height p.Y, compared without division.
			lhs := int64(p.X()-a.X()) * int64(b.Y()-a.Y())
			rhs := int64(b.X()-a.X()) * int64(p.Y()-a.Y())
			if (b.Y() > a.Y() && lhs < rhs) || (b.Y() < a.Y() && lhs > rhs) {
				inside = !inside
			}
		}
	}
	return inside
}

func cross(o, a, b Point) int64 {
	return int64(a.X()-o.X())*int64(b.Y()-o.Y()) - int64(a.Y()-o.Y())*int64(b.X()-o.X())
}

func sign(v int64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// onSegment reports whether p lies on the closed segment a-b.
func onSegment(a, b, p Point) bool {
	return cross(a, b, p) == 0 &&
		p.X() >= min(a.X(), b.X()) && p.X() <= max(a.X(), b.X()) &&
		p.Y() >= min(a.Y(), b.Y()) && p.Y() <= max(a.Y(), b.Y())
}

func segmentsIntersect(a1, a2, b1, b2 Point) bool {
	d1 := sign(cross(b1, b2, a1))
	d2 := sign(cross(b1, b2, a2))
	d3 := sign(cross(a1, a2, b1))
	d4 := sign(cross(a1, a2, b2))
	if d1 != d2 && d3 != d4 && d1 != 0 && d2 != 0 && d3 != 0 && d4 != 0 {
		return true
	}
	return (d1 == 0 && onSegment(b1, b2, a1)) ||
		(d2 == 0 && onSegment(b1, b2, a2)) ||
		(d3 == 0 && onSegment(a1, a2, b1)) ||
		(d4 == 0 && onSegment(a1, a2, b2))
}

// area2 is twice the signed shoelace area.
func area2(points []Point) int64 {
	var sum int64
	for i := range points {
		a, b := points[i], points[(i+1)%len(points)]
		sum += int64(a.X())*int64(b.Y()) - int64(b.X())*int64(a.Y())
	}
	return sum
}
