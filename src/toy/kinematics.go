package toy

import (
	"math"

	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/spatial/r3"
)

func p4Of(mom r3.Vec, m float64) fmom.PxPyPzE {
	return fmom.NewPxPyPzE(mom.X, mom.Y, mom.Z, math.Sqrt(r3.Dot(mom, mom)+m*m))
}

func vec3(p fmom.PxPyPzE) r3.Vec {
	return r3.Vec{X: p.Px(), Y: p.Py(), Z: p.Pz()}
}

// boostTo takes p from the rest frame of frame to the lab.
func boostTo(p, frame fmom.PxPyPzE) fmom.PxPyPzE {
	b := fmom.Boost(&p, fmom.BoostOf(&frame))
	return fmom.NewPxPyPzE(b.Px(), b.Py(), b.Pz(), b.E())
}

// twoBodyMomentum is the momentum of either daughter of a decay M -> m1 m2
// at rest.
func twoBodyMomentum(M, m1, m2 float64) float64 {
	s := (M*M - (m1+m2)*(m1+m2)) * (M*M - (m1-m2)*(m1-m2))
	if s <= 0 {
		return 0
	}
	return math.Sqrt(s) / (2 * M)
}

// isotropic turns two uniform numbers into a unit vector.
func isotropic(u1, u2 float64) r3.Vec {
	cost := 2*u1 - 1
	sint := math.Sqrt(1 - cost*cost)
	phi := 2 * math.Pi * u2
	return r3.Vec{X: sint * math.Cos(phi), Y: sint * math.Sin(phi), Z: cost}
}
