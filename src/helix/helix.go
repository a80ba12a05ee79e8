// Package helix implements the track parameterisation used by the fitter.
//
// A track in a solenoidal field along z is a helix with parameters
// (d0, phi0, omega, z0, tanLambda) defined at the point of closest approach
// to the z axis. With s the transverse arc length from that point:
//
//	phi(s) = phi0 - omega*s
//	x(s)   = d0*sin(phi0) + (sin(phi0) - sin(phi(s)))/omega
//	y(s)   = -d0*cos(phi0) + (cos(phi(s)) - cos(phi0))/omega
//	z(s)   = z0 + s*tanLambda
//
// omega = q*alpha/pt with alpha = c*Bz, so positive charges have positive
// curvature. Setting omega to zero gives a straight line, which is how
// neutral trajectories are represented.
package helix

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// BFieldConstant converts a field in tesla into GeV/c per cm of curvature radius.
const BFieldConstant = 0.00299792458

// Parameter indices.
const (
	D0 = iota
	Phi0
	Omega
	Z0
	TanLambda
	NPar
)

// Helix is a track trajectory.
type Helix struct {
	D0        float64
	Phi0      float64
	Omega     float64
	Z0        float64
	TanLambda float64
}

// FromVector builds a helix from the five parameters in index order.
func FromVector(v []float64) Helix {
	return Helix{D0: v[D0], Phi0: v[Phi0], Omega: v[Omega], Z0: v[Z0], TanLambda: v[TanLambda]}
}

func (h Helix) Vector() []float64 {
	return []float64{h.D0, h.Phi0, h.Omega, h.Z0, h.TanLambda}
}

// Straight reports whether the helix has no measurable curvature.
func (h Helix) Straight() bool { return math.Abs(h.Omega) < 1e-12 }

// Poca is the point of closest approach to the z axis.
func (h Helix) Poca() r3.Vec {
	return r3.Vec{X: h.D0 * math.Sin(h.Phi0), Y: -h.D0 * math.Cos(h.Phi0), Z: h.Z0}
}

// Position at arc length s.
func (h Helix) Position(s float64) r3.Vec {
	half := 0.5 * h.Omega * s
	a := s * sinc(half)
	phiMid := h.Phi0 - half
	p := h.Poca()
	return r3.Vec{
		X: p.X + a*math.Cos(phiMid),
		Y: p.Y + a*math.Sin(phiMid),
		Z: p.Z + s*h.TanLambda,
	}
}

// Phi is the azimuth of the direction of flight at arc length s.
func (h Helix) Phi(s float64) float64 { return h.Phi0 - h.Omega*s }

// Direction is the tangent (cos phi, sin phi, tanLambda) at arc length s.
// Its transverse part has unit length.
func (h Helix) Direction(s float64) r3.Vec {
	phi := h.Phi(s)
	return r3.Vec{X: math.Cos(phi), Y: math.Sin(phi), Z: h.TanLambda}
}

// Center is the centre of the transverse circle. It is meaningless for a
// straight helix.
func (h Helix) Center() r3.Vec {
	r := h.D0 + 1/h.Omega
	return r3.Vec{X: r * math.Sin(h.Phi0), Y: -r * math.Cos(h.Phi0)}
}

// Radius is the unsigned radius of the transverse circle.
func (h Helix) Radius() float64 { return 1 / math.Abs(h.Omega) }

// Pt is the transverse momentum for a particle of the given charge in field bz.
func (h Helix) Pt(charge, bz float64) float64 {
	if h.Straight() {
		return math.Inf(1)
	}
	return math.Abs(charge * BFieldConstant * bz / h.Omega)
}

// Momentum at arc length s.
func (h Helix) Momentum(s, charge, bz float64) r3.Vec {
	return r3.Scale(h.Pt(charge, bz), h.Direction(s))
}

// ArcLength2D returns the arc length of the point on the helix whose
// transverse position is closest to p, on the turn nearest the reference
// point.
func (h Helix) ArcLength2D(p r3.Vec) float64 {
	if h.Straight() {
		p0 := h.Poca()
		return (p.X-p0.X)*math.Cos(h.Phi0) + (p.Y-p0.Y)*math.Sin(h.Phi0)
	}
	c := h.Center()
	// direction of flight at the point, from x = xc - sin(phi)/omega
	// and y = yc + cos(phi)/omega
	phi := math.Atan2(-h.Omega*(p.X-c.X), h.Omega*(p.Y-c.Y))
	return PhiDomain(h.Phi0-phi) / h.Omega
}

// PhiDomain maps an angle into [-pi, pi).
func PhiDomain(x float64) float64 {
	if x >= -math.Pi && x < math.Pi {
		return x
	}
	y := math.Mod(x+math.Pi, 2*math.Pi)
	if y < 0 {
		y += 2 * math.Pi
	}
	return y - math.Pi
}

func sinc(x float64) float64 {
	if math.Abs(x) < 1e-4 {
		return 1 - x*x/6
	}
	return math.Sin(x) / x
}

// FromVertex returns the helix through pos with momentum mom for a particle
// of the given charge in field bz, the arc length s of pos along that helix,
// and the 5×6 Jacobian of the helix parameters with respect to
// (x, y, z, px, py, pz). Neutral particles or a zero field give a straight
// helix. ok is false if the transverse momentum vanishes.
func FromVertex(pos, mom r3.Vec, charge, bz float64) (h Helix, s float64, jac *mat.Dense, ok bool) {
	pt2 := mom.X*mom.X + mom.Y*mom.Y
	if pt2 <= 0 {
		return Helix{}, 0, nil, false
	}
	pt := math.Sqrt(pt2)
	phi := math.Atan2(mom.Y, mom.X)
	h.TanLambda = mom.Z / pt

	jac = mat.NewDense(NPar, 6, nil)

	// gradients of the momentum-derived quantities, over (x,y,z,px,py,pz)
	dphi := [6]float64{0, 0, 0, -mom.Y / pt2, mom.X / pt2, 0}
	dtanl := [6]float64{0, 0, 0, -mom.Z * mom.X / (pt2 * pt), -mom.Z * mom.Y / (pt2 * pt), 1 / pt}

	k := charge * BFieldConstant * bz
	if k == 0 {
		sphi, cphi := math.Sincos(phi)
		h.Phi0 = phi
		h.D0 = pos.X*sphi - pos.Y*cphi
		s = pos.X*cphi + pos.Y*sphi
		h.Z0 = pos.Z - s*h.TanLambda

		var dd0, ds [6]float64
		dd0[0], dd0[1] = sphi, -cphi
		ds[0], ds[1] = cphi, sphi
		for i := range 6 {
			dd0[i] += s * dphi[i]
			ds[i] -= h.D0 * dphi[i]
		}
		setRow(jac, D0, dd0)
		setRow(jac, Phi0, dphi)
		setRow(jac, Z0, z0Gradient(h.TanLambda, s, ds, dtanl))
		setRow(jac, TanLambda, dtanl)
		return h, s, jac, true
	}

	h.Omega = k / pt
	sigma := math.Copysign(1, k)
	xc := pos.X + mom.Y/k
	yc := pos.Y - mom.X/k
	rho := math.Hypot(xc, yc)
	R := pt / math.Abs(k)

	h.Phi0 = math.Atan2(sigma*xc, -sigma*yc)
	// d0 = sigma*(rho - R), written without the cancellation
	h.D0 = sigma * (pos.X*pos.X + pos.Y*pos.Y + 2*(pos.X*mom.Y-pos.Y*mom.X)/k) / (rho + R)
	s = PhiDomain(h.Phi0-phi) / h.Omega
	h.Z0 = pos.Z - s*h.TanLambda

	dxc := [6]float64{1, 0, 0, 0, 1 / k, 0}
	dyc := [6]float64{0, 1, 0, -1 / k, 0, 0}
	dpt := [6]float64{0, 0, 0, mom.X / pt, mom.Y / pt, 0}

	var dphi0, dd0, domega, ds [6]float64
	for i := range 6 {
		drho := (xc*dxc[i] + yc*dyc[i]) / rho
		dphi0[i] = (-yc*dxc[i] + xc*dyc[i]) / (rho * rho)
		dd0[i] = sigma * (drho - dpt[i]/math.Abs(k))
		domega[i] = -h.Omega / pt * dpt[i]
		ds[i] = (dphi0[i]-dphi[i])/h.Omega - s*domega[i]/h.Omega
	}
	setRow(jac, D0, dd0)
	setRow(jac, Phi0, dphi0)
	setRow(jac, Omega, domega)
	setRow(jac, Z0, z0Gradient(h.TanLambda, s, ds, dtanl))
	setRow(jac, TanLambda, dtanl)
	return h, s, jac, true
}

func z0Gradient(tanl, s float64, ds, dtanl [6]float64) [6]float64 {
	var g [6]float64
	for i := range 6 {
		g[i] = -tanl*ds[i] - s*dtanl[i]
	}
	g[2]++
	return g
}

func setRow(m *mat.Dense, row int, v [6]float64) {
	for j, x := range v {
		m.Set(row, j, x)
	}
}
