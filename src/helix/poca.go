package helix

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/belle2/basf2-sub109/src/errcode"
)

const (
	pocaMaxIter = 20
	pocaTol     = 1e-10
)

// Line returns the straight helix through point with direction dir.
func Line(point, dir r3.Vec) (Helix, bool) {
	h, _, _, ok := FromVertex(point, dir, 0, 0)
	return h, ok
}

type candidate struct {
	s1, s2 float64
}

// Poca finds the point of closest approach of two trajectories, each a
// helix or a straight line. It returns the arc lengths on both, the
// midpoint of the two closest points and their distance.
//
// Candidates come from the transverse geometry (circle and line
// intersections); the one with the smallest separation in z wins, ties
// going to the shorter flight. The winner is then refined in three
// dimensions. Concentric circles and parallel lines have no unique
// solution and give PocaFailure.
func Poca(h1, h2 Helix) (s1, s2 float64, vertex r3.Vec, doca float64, ec errcode.ErrCode) {
	cands, ec := transverseCandidates(h1, h2)
	if ec.Failure() {
		return 0, 0, r3.Vec{}, 0, ec
	}

	best := -1
	bestDz, bestLen := math.Inf(1), math.Inf(1)
	for i, c := range cands {
		dz := math.Abs(h1.Position(c.s1).Z - h2.Position(c.s2).Z)
		flight := math.Abs(c.s1) + math.Abs(c.s2)
		switch {
		case dz < bestDz-1e-9:
			best, bestDz, bestLen = i, dz, flight
		case dz <= bestDz+1e-9 && flight < bestLen:
			best, bestDz, bestLen = i, math.Min(dz, bestDz), flight
		}
	}
	if best < 0 {
		return 0, 0, r3.Vec{}, 0, errcode.PocaFailure
	}

	s1, s2 = refine(h1, h2, cands[best].s1, cands[best].s2)
	p1, p2 := h1.Position(s1), h2.Position(s2)
	vertex = r3.Scale(0.5, r3.Add(p1, p2))
	doca = r3.Norm(r3.Sub(p1, p2))
	if math.IsNaN(doca) || math.IsInf(doca, 0) {
		return 0, 0, r3.Vec{}, 0, errcode.PocaFailure
	}
	return s1, s2, vertex, doca, errcode.Success
}

// PocaPoint returns the arc length on h closest to point in three dimensions.
func PocaPoint(h Helix, point r3.Vec) float64 {
	s := h.ArcLength2D(point)
	for range pocaMaxIter {
		d := r3.Sub(h.Position(s), point)
		t := h.Direction(s)
		n := r3.Vec{X: h.Omega * math.Sin(h.Phi(s)), Y: -h.Omega * math.Cos(h.Phi(s))}
		g := r3.Dot(d, t)
		H := r3.Dot(t, t) + r3.Dot(d, n)
		if H <= 0 {
			break
		}
		step := g / H
		s -= step
		if math.Abs(step) < pocaTol {
			break
		}
	}
	return s
}

func transverseCandidates(h1, h2 Helix) ([]candidate, errcode.ErrCode) {
	switch {
	case h1.Straight() && h2.Straight():
		return lineLine(h1, h2)
	case h1.Straight():
		cands, ec := circleLine(h2, h1)
		for i := range cands {
			cands[i].s1, cands[i].s2 = cands[i].s2, cands[i].s1
		}
		return cands, ec
	case h2.Straight():
		return circleLine(h1, h2)
	default:
		return circleCircle(h1, h2)
	}
}

func circleCircle(h1, h2 Helix) ([]candidate, errcode.ErrCode) {
	c1, c2 := h1.Center(), h2.Center()
	r1, r2 := h1.Radius(), h2.Radius()
	dc := r3.Sub(c2, c1)
	d := math.Hypot(dc.X, dc.Y)
	if d < 1e-9*math.Max(r1, r2) {
		return nil, errcode.PocaFailure
	}
	u := r3.Vec{X: dc.X / d, Y: dc.Y / d}

	switch {
	case d >= r1+r2:
		// apart: closest points on the line of centres
		p1 := r3.Add(c1, r3.Scale(r1, u))
		p2 := r3.Sub(c2, r3.Scale(r2, u))
		return []candidate{{h1.ArcLength2D(p1), h2.ArcLength2D(p2)}}, errcode.Success
	case d <= math.Abs(r1-r2):
		// nested
		p1 := r3.Add(c1, r3.Scale(r1, u))
		p2 := r3.Add(c2, r3.Scale(r2, u))
		if r2 > r1 {
			p1 = r3.Sub(c1, r3.Scale(r1, u))
			p2 = r3.Sub(c2, r3.Scale(r2, u))
		}
		return []candidate{{h1.ArcLength2D(p1), h2.ArcLength2D(p2)}}, errcode.Success
	}

	a := (r1*r1 - r2*r2 + d*d) / (2 * d)
	hh := math.Sqrt(math.Max(r1*r1-a*a, 0))
	mid := r3.Add(c1, r3.Scale(a, u))
	perp := r3.Vec{X: -u.Y, Y: u.X}
	pa := r3.Add(mid, r3.Scale(hh, perp))
	pb := r3.Sub(mid, r3.Scale(hh, perp))
	return []candidate{
		{h1.ArcLength2D(pa), h2.ArcLength2D(pa)},
		{h1.ArcLength2D(pb), h2.ArcLength2D(pb)},
	}, errcode.Success
}

// circleLine handles a curved h against a straight l. Candidates carry the
// arc length on h first.
func circleLine(h, l Helix) ([]candidate, errcode.ErrCode) {
	c := h.Center()
	r := h.Radius()
	q := l.Poca()
	t := r3.Vec{X: math.Cos(l.Phi0), Y: math.Sin(l.Phi0)}

	along := (c.X-q.X)*t.X + (c.Y-q.Y)*t.Y
	foot := r3.Vec{X: q.X + along*t.X, Y: q.Y + along*t.Y}
	off := r3.Vec{X: c.X - foot.X, Y: c.Y - foot.Y}
	dist := math.Hypot(off.X, off.Y)

	if dist >= r {
		var onCircle r3.Vec
		if dist == 0 {
			onCircle = foot
		} else {
			onCircle = r3.Vec{X: c.X - r*off.X/dist, Y: c.Y - r*off.Y/dist}
		}
		return []candidate{{h.ArcLength2D(onCircle), l.ArcLength2D(foot)}}, errcode.Success
	}

	w := math.Sqrt(r*r - dist*dist)
	pa := r3.Add(foot, r3.Scale(w, t))
	pb := r3.Sub(foot, r3.Scale(w, t))
	return []candidate{
		{h.ArcLength2D(pa), l.ArcLength2D(pa)},
		{h.ArcLength2D(pb), l.ArcLength2D(pb)},
	}, errcode.Success
}

func lineLine(h1, h2 Helix) ([]candidate, errcode.ErrCode) {
	p1, p2 := h1.Poca(), h2.Poca()
	t1, t2 := h1.Direction(0), h2.Direction(0)
	w := r3.Sub(p1, p2)

	// closest approach of two 3D lines p + s t
	a := r3.Dot(t1, t1)
	b := r3.Dot(t1, t2)
	c := r3.Dot(t2, t2)
	d := r3.Dot(t1, w)
	e := r3.Dot(t2, w)
	den := a*c - b*b
	if den < 1e-12*a*c {
		return nil, errcode.PocaFailure
	}
	return []candidate{{(b*e - c*d) / den, (a*e - b*d) / den}}, errcode.Success
}

// refine minimises |P1(s1) - P2(s2)|^2 with Newton steps. A step that does
// not reduce the distance ends the iteration.
func refine(h1, h2 Helix, s1, s2 float64) (float64, float64) {
	dist2 := func(a, b float64) float64 {
		d := r3.Sub(h1.Position(a), h2.Position(b))
		return r3.Dot(d, d)
	}
	cur := dist2(s1, s2)
	for range pocaMaxIter {
		d := r3.Sub(h1.Position(s1), h2.Position(s2))
		t1, t2 := h1.Direction(s1), h2.Direction(s2)
		n1 := r3.Vec{X: h1.Omega * math.Sin(h1.Phi(s1)), Y: -h1.Omega * math.Cos(h1.Phi(s1))}
		n2 := r3.Vec{X: h2.Omega * math.Sin(h2.Phi(s2)), Y: -h2.Omega * math.Cos(h2.Phi(s2))}

		g1 := r3.Dot(d, t1)
		g2 := -r3.Dot(d, t2)
		a := r3.Dot(t1, t1) + r3.Dot(d, n1)
		c := r3.Dot(t2, t2) - r3.Dot(d, n2)
		b := -r3.Dot(t1, t2)
		det := a*c - b*b
		if det <= 1e-14*a*c || a <= 0 {
			break
		}
		ds1 := -(c*g1 - b*g2) / det
		ds2 := -(a*g2 - b*g1) / det

		next := dist2(s1+ds1, s2+ds2)
		if next > cur {
			break
		}
		s1, s2, cur = s1+ds1, s2+ds2, next
		if math.Abs(ds1)+math.Abs(ds2) < pocaTol {
			break
		}
	}
	return s1, s2
}
