// Package toy generates synthetic decay trees with exact or smeared
// detector measurements.
package toy

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go-hep.org/x/hep/fmom"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/belle2/basf2-sub109/src/helix"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/pdg"
)

// Truth is the generated state of one particle.
type Truth struct {
	Production r3.Vec
	// Decay equals Production for particles that do not fly.
	Decay    r3.Vec
	Momentum r3.Vec
	Energy   float64
}

// Event is one generated candidate.
type Event struct {
	Head  *particle.Particle
	Truth map[*particle.Particle]Truth
}

// Generator is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
	src rand.Source

	bz              float64
	trackSigma      [helix.NPar]float64
	clusterPosSigma float64
	clusterEnergy   float64
	clusterDistance float64
	origin          r3.Vec
	smear           bool
	resonanceCTau   float64
}

type generatorOptions struct {
	seed            uint64
	bz              float64
	trackSigma      [helix.NPar]float64
	clusterPosSigma float64
	clusterEnergy   float64
	clusterDistance float64
	origin          r3.Vec
	smear           bool
	resonanceCTau   float64
}

// Option configures a Generator
type Option func(*generatorOptions)

func WithSeed(seed uint64) Option {
	return func(o *generatorOptions) {
		o.seed = seed
	}
}

// WithBField sets the solenoid field in T.
func WithBField(bz float64) Option {
	return func(o *generatorOptions) {
		o.bz = bz
	}
}

// WithTrackResolution sets the helix resolution. The curvature entry is
// relative to |omega|; the others are absolute.
func WithTrackResolution(sigma [helix.NPar]float64) Option {
	return func(o *generatorOptions) {
		o.trackSigma = sigma
	}
}

// WithClusterResolution sets the position resolution in cm and the
// relative energy resolution.
func WithClusterResolution(pos, energy float64) Option {
	return func(o *generatorOptions) {
		o.clusterPosSigma = pos
		o.clusterEnergy = energy
	}
}

// WithClusterDistance sets how far from its vertex a neutral deposits its
// cluster, in cm.
func WithClusterDistance(d float64) Option {
	return func(o *generatorOptions) {
		o.clusterDistance = d
	}
}

// WithOrigin sets the production vertex of the head.
func WithOrigin(v r3.Vec) Option {
	return func(o *generatorOptions) {
		o.origin = v
	}
}

// WithSmearing turns measurement smearing on or off.
func WithSmearing(smear bool) Option {
	return func(o *generatorOptions) {
		o.smear = smear
	}
}

// WithResonanceCTau sets the decay length below which a particle decays in
// place.
func WithResonanceCTau(ctau float64) Option {
	return func(o *generatorOptions) {
		o.resonanceCTau = ctau
	}
}

var defaultGeneratorOptions = generatorOptions{
	seed:            1,
	bz:              1.5,
	trackSigma:      [helix.NPar]float64{0.002, 5e-4, 2e-3, 0.003, 5e-4},
	clusterPosSigma: 0.5,
	clusterEnergy:   0.03,
	clusterDistance: 150,
	smear:           true,
	resonanceCTau:   1e-5,
}

func NewGenerator(opts ...Option) *Generator {
	options := defaultGeneratorOptions
	for _, opt := range opts {
		opt(&options)
	}
	src := rand.NewPCG(options.seed, options.seed^0x9e3779b97f4a7c15)
	return &Generator{
		rng:             rand.New(src),
		src:             src,
		bz:              options.bz,
		trackSigma:      options.trackSigma,
		clusterPosSigma: options.clusterPosSigma,
		clusterEnergy:   options.clusterEnergy,
		clusterDistance: options.clusterDistance,
		origin:          options.origin,
		smear:           options.smear,
		resonanceCTau:   options.resonanceCTau,
	}
}

// BField is the field tracks are generated in.
func (g *Generator) BField() float64 { return g.bz }

// Generate produces one candidate following d. The head starts at the
// origin with the momentum given in d, or at rest.
func (g *Generator) Generate(d Decay) (Event, error) {
	if err := d.Validate(); err != nil {
		return Event{}, err
	}
	info, err := pdg.Resolve(d.Particle)
	if err != nil {
		return Event{}, errors.Wrap(ErrInvalidDecay, err.Error())
	}
	var mom r3.Vec
	if len(d.Momentum) == 3 {
		mom = r3.Vec{X: d.Momentum[0], Y: d.Momentum[1], Z: d.Momentum[2]}
	}
	ev := Event{Truth: make(map[*particle.Particle]Truth)}
	head := p4Of(mom, info.Mass)
	ev.Head, err = g.generate(d, info, head, g.origin, ev.Truth)
	if err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (g *Generator) generate(d Decay, info pdg.Particle, p4 fmom.PxPyPzE, production r3.Vec, truth map[*particle.Particle]Truth) (*particle.Particle, error) {
	daughters, err := g.pickChannel(d)
	if err != nil {
		return nil, err
	}
	mom := vec3(p4)
	if len(daughters) == 0 {
		p, err := g.finalState(info, production, mom)
		if err != nil {
			return nil, err
		}
		truth[p] = Truth{Production: production, Decay: production, Momentum: mom, Energy: p4.E()}
		return p, nil
	}

	vertex := production
	if info.CTau >= g.resonanceCTau && !info.IsStable() {
		bg := p4.P() / info.Mass
		if mean := bg * info.CTau; mean > 0 {
			flight := distuv.Exponential{Rate: 1 / mean, Src: g.src}.Rand()
			if dir := p4.P(); dir > 0 {
				vertex = r3.Add(production, r3.Scale(flight/dir, mom))
			}
		}
	}

	masses := make([]float64, len(daughters))
	infos := make([]pdg.Particle, len(daughters))
	for i, dd := range daughters {
		di, err := pdg.Resolve(dd.Particle)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidDecay, err.Error())
		}
		infos[i], masses[i] = di, di.Mass
	}
	rest := g.phaseSpace(info.Mass, masses)

	ds := make([]*particle.Particle, len(daughters))
	for i, dd := range daughters {
		dp, err := g.generate(dd, infos[i], boostTo(rest[i], p4), vertex, truth)
		if err != nil {
			return nil, err
		}
		ds[i] = dp
	}
	p := particle.NewComposite(info.Code, ds...)
	truth[p] = Truth{Production: production, Decay: vertex, Momentum: mom, Energy: p4.E()}
	log.WithFields(log.Fields{
		"particle": info.Name,
		"flight":   r3.Norm(r3.Sub(vertex, production)),
	}).Trace("generated decay")
	return p, nil
}

// pickChannel returns the daughters of d, drawing a channel when d has
// several.
func (g *Generator) pickChannel(d Decay) ([]Decay, error) {
	if len(d.Channels) == 0 {
		return d.Daughters, nil
	}
	brs := make([]float64, len(d.Channels))
	for i, ch := range d.Channels {
		brs[i] = ch.BR
	}
	t, err := newAliasTable(brs)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDecay, "%s: %v", d.Particle, err)
	}
	return d.Channels[t.sample(g.rng)].Daughters, nil
}

// phaseSpace splits a particle of mass M at rest into daughters of the
// given masses by successive two-body decays. The intermediate masses are
// drawn uniformly, which is not exact phase space for more than two bodies.
func (g *Generator) phaseSpace(M float64, masses []float64) []fmom.PxPyPzE {
	out := make([]fmom.PxPyPzE, len(masses))
	if len(masses) == 1 {
		out[0] = fmom.NewPxPyPzE(0, 0, 0, M)
		return out
	}
	restMin := 0.0
	for _, m := range masses[1:] {
		restMin += m
	}
	restMass := restMin
	if len(masses) > 2 {
		restMass = restMin + g.rng.Float64()*(M-masses[0]-restMin)
	}

	q := twoBodyMomentum(M, masses[0], restMass)
	dir := isotropic(g.rng.Float64(), g.rng.Float64())
	out[0] = p4Of(r3.Scale(q, dir), masses[0])
	restP := p4Of(r3.Scale(-q, dir), restMass)

	if len(masses) == 2 {
		out[1] = restP
		return out
	}
	for i, l := range g.phaseSpace(restMass, masses[1:]) {
		out[i+1] = boostTo(l, restP)
	}
	return out
}

func (g *Generator) finalState(info pdg.Particle, vertex, mom r3.Vec) (*particle.Particle, error) {
	switch {
	case info.Code == 22:
		return g.Photon(vertex, mom)
	case info.Code == 130:
		return g.Klong(vertex, mom)
	case info.Charge != 0:
		return g.Track(info.Code, vertex, mom)
	}
	return nil, errors.Wrapf(ErrInvalidDecay, "%s cannot be measured", info.Name)
}

// Track measures a charged particle produced at vertex with momentum mom.
func (g *Generator) Track(code int, vertex, mom r3.Vec) (*particle.Particle, error) {
	info, ok := pdg.Lookup(code)
	if !ok || info.Charge == 0 {
		return nil, errors.Wrapf(ErrInvalidDecay, "%s is not charged", pdg.Name(code))
	}
	h, _, _, ok := helix.FromVertex(vertex, mom, info.Charge, g.bz)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidDecay, "%s has no transverse momentum", info.Name)
	}
	sigma := g.trackSigma
	sigma[helix.Omega] *= math.Abs(h.Omega)
	cov := diagonal(sigma[:])
	params := g.measure(h.Vector(), cov)
	params[helix.Phi0] = helix.PhiDomain(params[helix.Phi0])
	return particle.NewTrack(code, particle.TrackFit{
		Helix:  helix.FromVector(params),
		Cov:    cov,
		BField: g.bz,
	}), nil
}

// Photon measures a photon with a cluster along its flight direction.
func (g *Generator) Photon(vertex, mom r3.Vec) (*particle.Particle, error) {
	c, err := g.cluster(vertex, mom, r3.Norm(mom))
	if err != nil {
		return nil, err
	}
	return particle.NewPhoton(c), nil
}

// Klong measures a K_L0 in the muon system. Only the direction is used by
// the fit; the energy is stored as the true one.
func (g *Generator) Klong(vertex, mom r3.Vec) (*particle.Particle, error) {
	m := pdg.Mass(130)
	c, err := g.cluster(vertex, mom, math.Sqrt(r3.Dot(mom, mom)+m*m))
	if err != nil {
		return nil, err
	}
	c.Energy = math.Sqrt(r3.Dot(mom, mom) + m*m)
	return particle.NewKlong(c, particle.KLMCluster), nil
}

func (g *Generator) cluster(vertex, mom r3.Vec, energy float64) (particle.Cluster, error) {
	if r3.Norm(mom) == 0 {
		return particle.Cluster{}, errors.Wrap(ErrInvalidDecay, "neutral at rest")
	}
	pos := r3.Add(vertex, r3.Scale(g.clusterDistance, r3.Unit(mom)))
	s := g.clusterPosSigma
	cov := diagonal([]float64{s, s, s, g.clusterEnergy * energy})
	v := g.measure([]float64{pos.X, pos.Y, pos.Z, energy}, cov)
	return particle.Cluster{
		Position: r3.Vec{X: v[0], Y: v[1], Z: v[2]},
		Energy:   v[3],
		Cov:      cov,
	}, nil
}

// measure draws from a normal around truth, or returns truth when smearing
// is off.
func (g *Generator) measure(truth []float64, cov *mat.SymDense) []float64 {
	out := append([]float64(nil), truth...)
	if !g.smear {
		return out
	}
	n, ok := distmv.NewNormal(truth, cov, g.src)
	if !ok {
		log.WithField("dim", len(truth)).Warn("toy: covariance not positive definite, not smearing")
		return out
	}
	return n.Rand(out)
}

func diagonal(sigma []float64) *mat.SymDense {
	cov := mat.NewSymDense(len(sigma), nil)
	for i, s := range sigma {
		cov.SetSym(i, i, s*s)
	}
	return cov
}
