package treefit

// Kind is the variant of a node in the decay tree.
type Kind int

const (
	KindInteractionPoint Kind = iota
	KindInternalParticle
	KindResonance
	KindConversion
	KindRecoTrack
	KindRecoPhoton
	KindRecoKlong
)

func (k Kind) String() string {
	switch k {
	case KindInteractionPoint:
		return "InteractionPoint"
	case KindInternalParticle:
		return "InternalParticle"
	case KindResonance:
		return "Resonance"
	case KindConversion:
		return "Conversion"
	case KindRecoTrack:
		return "RecoTrack"
	case KindRecoPhoton:
		return "RecoPhoton"
	case KindRecoKlong:
		return "RecoKlong"
	}
	return "Unknown"
}

// ConstraintType orders the constraints: a pass applies them by type in
// this order, deeper nodes first within a type.
type ConstraintType int

const (
	BeamSpotConstraint ConstraintType = iota
	LifetimeConstraint
	TrackConstraint
	PhotonConstraint
	KlongConstraint
	GeometricConstraint
	KinematicConstraint
	MassConstraint
	ConversionConstraint
)

func (t ConstraintType) String() string {
	switch t {
	case BeamSpotConstraint:
		return "beamspot"
	case LifetimeConstraint:
		return "lifetime"
	case TrackConstraint:
		return "track"
	case PhotonConstraint:
		return "photon"
	case KlongConstraint:
		return "klong"
	case GeometricConstraint:
		return "geometric"
	case KinematicConstraint:
		return "kinematic"
	case MassConstraint:
		return "mass"
	case ConversionConstraint:
		return "conversion"
	}
	return "unknown"
}

// VertexStatus is the state of a FitManager.
type VertexStatus int

const (
	UnFitted VertexStatus = iota
	Iterating
	Success
	NonConverged
	BadInput
	Failed
)

func (s VertexStatus) String() string {
	switch s {
	case UnFitted:
		return "UnFitted"
	case Iterating:
		return "Iterating"
	case Success:
		return "Success"
	case NonConverged:
		return "NonConverged"
	case BadInput:
		return "BadInput"
	case Failed:
		return "Failed"
	}
	return "Unknown"
}

// Terminal reports whether a fit in this state has finished.
func (s VertexStatus) Terminal() bool {
	return s != UnFitted && s != Iterating
}
