package treefit

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/errcode"
	"github.com/belle2/basf2-sub109/src/fitparams"
	"github.com/belle2/basf2-sub109/src/matrix"
	"github.com/belle2/basf2-sub109/src/particle"
)

// speedOfLight in cm/ps.
const speedOfLight = 0.0299792458

// FitManager fits one candidate and writes the result back into it. A
// FitManager is not safe for concurrent use; independent candidates get
// independent managers.
type FitManager struct {
	cfg  config.ConstraintConfiguration
	opts fitOptions
	log  *log.Entry

	head  *particle.Particle
	chain *DecayChain
	fp    *fitparams.FitParams

	status VertexStatus
	ec     errcode.ErrCode
	err    error
	chi2   float64
	ndf    int
	niter  int
}

// NewFitManager builds the decay chain for head. Unusable candidates give a
// manager in state BadInput whose Fit does nothing.
func NewFitManager(head *particle.Particle, cfg config.ConstraintConfiguration, opts ...Option) *FitManager {
	options := defaultFitOptions()
	for _, opt := range opts {
		opt(&options)
	}
	cfg = cfg.Clone()
	if options.maxIterations != nil {
		cfg.MaxIterations = *options.maxIterations
	}
	if options.precision != nil {
		cfg.Precision = *options.precision
	}
	if options.updateDaughters != nil {
		cfg.UpdateDaughters = *options.updateDaughters
	}

	fm := &FitManager{
		cfg:    cfg,
		opts:   options,
		log:    options.logger,
		head:   head,
		status: UnFitted,
		chi2:   -1,
	}
	if head != nil {
		fm.log = fm.log.WithField("head", head.PDG())
	}

	if err := cfg.Validate(); err != nil {
		fm.badInput(err)
		return fm
	}
	chain, err := NewDecayChain(head, cfg)
	if err != nil {
		fm.badInput(err)
		return fm
	}
	fm.chain = chain
	fm.fp = fitparams.New(chain.Dim())
	return fm
}

func (fm *FitManager) badInput(err error) {
	fm.status = BadInput
	fm.err = err
	fm.log.WithFields(log.Fields{
		"error": err,
	}).Warn("candidate rejected")
}

// Fit iterates passes over the constraint list until the chi-square
// settles. It reports whether the fit succeeded. Calling Fit again starts
// over from a fresh initialisation.
func (fm *FitManager) Fit() bool {
	if fm.chain == nil {
		return false
	}
	fm.status = Iterating
	fm.ec = errcode.Success
	fm.err = nil
	fm.chi2 = -1
	fm.niter = 0

	if ec := fm.chain.Initialize(fm.fp); ec.Failure() {
		fm.fail(Failed, ec)
		fm.record()
		return false
	}

	var (
		ndiverging int
		finished   bool
		prev       = fm.fp.Clone()
		ref        *fitparams.FitParams
	)
	niter := 0
	for ; niter < fm.cfg.MaxIterations && !finished; niter++ {
		prev.CopyFrom(fm.fp)
		if fm.cfg.UseReferencing && niter > 0 {
			ref = prev
		}
		ec := fm.chain.Filter(fm.fp, niter == 0, ref, fm.log)
		fm.ndf = fm.fp.NDF()
		chi2 := fm.fp.Chi2()
		dchi2 := chi2 - fm.chi2

		fm.log.WithFields(log.Fields{
			"iteration": niter,
			"chi2":      chi2,
			"ndf":       fm.ndf,
		}).Debug("pass finished")

		if ec.Failure() {
			fm.fp.CopyFrom(prev)
			fm.fail(Failed, ec)
			finished = true
			break
		}

		if niter > 0 {
			quit := math.Max(2*float64(fm.ndf), 2*fm.chi2)
			switch {
			case math.Abs(dchi2) < fm.cfg.Precision:
				fm.status = Success
				finished = true
			case niter > 1 && dchi2 > quit:
				fm.fp.CopyFrom(prev)
				fm.fail(Failed, errcode.FastDivergingFit)
				finished = true
			case dchi2 > 0:
				ndiverging++
				if ndiverging >= maxDiverging {
					fm.fp.CopyFrom(prev)
					fm.fail(NonConverged, errcode.SlowDivergingFit)
					finished = true
					break
				}
				// halfway back towards the previous state
				fm.fp.Par().AddVec(fm.fp.Par(), prev.Par())
				fm.fp.Par().ScaleVec(0.5, fm.fp.Par())
				fm.log.WithField("iteration", niter).Debug("chi2 increased, taking half step")
			default:
				ndiverging = 0
			}
		}
		if fm.status == Iterating || fm.status == Success {
			fm.chi2 = chi2
		}
		if finished {
			break
		}
	}
	fm.niter = niter

	if fm.status == Iterating {
		fm.status = NonConverged
	}
	if fm.status != Failed && !fm.fp.TestCov() {
		fm.fail(Failed, errcode.NonPositiveDefinite)
	}
	if fm.status == Success && fm.cfg.ForceP4Sum {
		fm.forceP4Sum()
	}

	fm.log.WithFields(log.Fields{
		"status":     fm.status,
		"iterations": fm.niter,
		"chi2":       fm.chi2,
		"ndf":        fm.ndf,
	}).Debug("fit finished")
	fm.record()
	return fm.status == Success
}

// forceP4Sum makes composite momenta equal to their daughter sums. If that
// is impossible the fitted state is kept and the fit is marked Failed.
func (fm *FitManager) forceP4Sum() {
	fitted := fm.fp.Clone()
	if ec := fm.chain.ForceP4Sum(fm.fp); ec.Failure() {
		fm.fp.CopyFrom(fitted)
		fm.fail(Failed, ec)
	}
}

func (fm *FitManager) fail(status VertexStatus, ec errcode.ErrCode) {
	fm.status = status
	fm.ec |= ec
	fm.err = errors.Wrapf(fm.ec.Err(), "fit %s", status)
}

func (fm *FitManager) record() {
	fm.opts.recorder.ObserveFit(fm.status.String(), fm.niter, fm.chi2, fm.ndf, fm.PValue())
}

func (fm *FitManager) Status() VertexStatus { return fm.status }

// ErrCode is the accumulated failure code of the last fit.
func (fm *FitManager) ErrCode() errcode.ErrCode { return fm.ec }

// Err explains a BadInput, Failed or NonConverged status. It is nil after
// a successful fit.
func (fm *FitManager) Err() error { return fm.err }

func (fm *FitManager) Chi2() float64 { return fm.chi2 }
func (fm *FitManager) NDF() int      { return fm.ndf }

// Iterations is the number of the pass at which the fit stopped.
func (fm *FitManager) Iterations() int { return fm.niter }

// PValue is the chi-square probability of the fit, zero when it has no
// degrees of freedom or has not run.
func (fm *FitManager) PValue() float64 {
	if fm.ndf <= 0 || fm.chi2 < 0 {
		return 0
	}
	return distuv.ChiSquared{K: float64(fm.ndf)}.Survival(fm.chi2)
}

// FitParams exposes the fitted state. It is nil for BadInput.
func (fm *FitManager) FitParams() *fitparams.FitParams { return fm.fp }

func (fm *FitManager) DecayChain() *DecayChain { return fm.chain }

func (fm *FitManager) Config() config.ConstraintConfiguration { return fm.cfg }

// UpdateTree writes the fit result into the head and, with UpdateDaughters,
// into every particle below it. It reports whether anything was written.
func (fm *FitManager) UpdateTree() bool {
	if fm.chain == nil || fm.status != Success {
		return false
	}
	fm.updateTree(fm.head, true)
	return true
}

func (fm *FitManager) updateTree(p *particle.Particle, isHead bool) {
	if !fm.UpdateCand(p, isHead) {
		return
	}
	if !fm.cfg.UpdateDaughters {
		return
	}
	for _, d := range p.Daughters() {
		fm.updateTree(d, false)
	}
}

// UpdateCand copies the fitted four-momentum, vertex and covariance of p
// into it. For the head it also sets the p-value and the fit summary.
func (fm *FitManager) UpdateCand(p *particle.Particle, isHead bool) bool {
	if fm.chain == nil || fm.status == UnFitted || fm.status == BadInput {
		return false
	}
	n := fm.chain.Locate(p)
	if n == nil {
		return false
	}
	fp := fm.fp

	mom := momentumOf(n, fp)
	p.SetP4(mom.X, mom.Y, mom.Z, energyOf(n, fp))
	if pos := n.PosIndex(); pos >= 0 {
		p.SetVertex(vec3(fp, pos))
	}
	p.SetCov(fm.GetCovFromPB(n))

	if isHead {
		p.SetPValue(fm.PValue())
		p.SetExtraInfo("chiSquared", fm.chi2)
		p.SetExtraInfo("ndf", float64(fm.ndf))
	}
	if HasLifetime(n) {
		l, lerr := fm.GetDecayLength(n)
		p.SetExtraInfo("decayLength", l)
		p.SetExtraInfo("decayLengthErr", lerr)
		t, terr := fm.GetLifeTime(n)
		p.SetExtraInfo("lifeTime", t)
		p.SetExtraInfo("lifeTimeErr", terr)
	}
	return true
}

// GetCovFromPB returns the 7×7 covariance of n in (px, py, pz, E, x, y, z).
// The energy of nodes without an energy parameter follows from their mass.
// Blocks the node has no parameters for are zero.
func (fm *FitManager) GetCovFromPB(n ParticleBase) *mat.SymDense {
	fp := fm.fp
	var (
		J   *mat.Dense
		idx []int
	)
	if mi := n.MomIndex(); mi >= 0 {
		nm := 3
		if n.HasEnergy() {
			nm = 4
		}
		// (px, py, pz, E) rows over the momentum parameters
		dMom := mat.NewDense(particle.CovDim, nm, nil)
		for k := range nm {
			dMom.Set(k, k, 1)
		}
		idx = []int{mi, mi + 1, mi + 2}
		if nm == 4 {
			idx = append(idx, mi+3)
		} else if e := energyOf(n, fp); e > 0 {
			mom := momentumOf(n, fp)
			dMom.Set(3, 0, mom.X/e)
			dMom.Set(3, 1, mom.Y/e)
			dMom.Set(3, 2, mom.Z/e)
		}
		J = dMom
	}
	if pos := n.PosIndex(); pos >= 0 {
		dPos := mat.NewDense(particle.CovDim, 3, nil)
		for k := range 3 {
			dPos.Set(4+k, k, 1)
		}
		if J == nil {
			J = dPos
		} else {
			J = matrix.Concatenate(J, dPos)
		}
		idx = append(idx, pos, pos+1, pos+2)
	}
	if J == nil {
		return mat.NewSymDense(particle.CovDim, nil)
	}
	return matrix.Similarity(J, fp.SubCovIndices(idx))
}

// GetDecayLength returns the flight distance tau*|p| of n from its mother's
// vertex and its uncertainty.
func (fm *FitManager) GetDecayLength(n ParticleBase) (float64, float64) {
	if fm.fp == nil || !HasLifetime(n) {
		return 0, 0
	}
	ti, mi := n.TauIndex(), n.MomIndex()
	mom := momentumOf(n, fm.fp)
	mag := math.Sqrt(mom.X*mom.X + mom.Y*mom.Y + mom.Z*mom.Z)
	tau := fm.fp.At(ti)
	if mag == 0 {
		return 0, 0
	}

	// gradient over (tau, px, py, pz)
	g := mat.NewDense(1, 4, []float64{mag, tau * mom.X / mag, tau * mom.Y / mag, tau * mom.Z / mag})
	v := matrix.Similarity(g, fm.fp.SubCovIndices([]int{ti, mi, mi + 1, mi + 2}))
	return tau * mag, math.Sqrt(math.Max(v.At(0, 0), 0))
}

// GetLifeTime returns the proper decay time of n in ps, tau*m/c, and its
// uncertainty. The mass is the fitted invariant mass.
func (fm *FitManager) GetLifeTime(n ParticleBase) (float64, float64) {
	if fm.fp == nil || !HasLifetime(n) || !n.HasEnergy() {
		return 0, 0
	}
	ti, mi := n.TauIndex(), n.MomIndex()
	mom := momentumOf(n, fm.fp)
	e := fm.fp.At(mi + 3)
	m2 := e*e - (mom.X*mom.X + mom.Y*mom.Y + mom.Z*mom.Z)
	if m2 <= 0 {
		return 0, 0
	}
	m := math.Sqrt(m2)
	tau := fm.fp.At(ti)

	// gradient over (tau, px, py, pz, E); dm/dp = -p/m, dm/dE = E/m
	k := 1 / speedOfLight
	g := mat.NewDense(1, 5, []float64{
		k * m,
		-k * tau * mom.X / m,
		-k * tau * mom.Y / m,
		-k * tau * mom.Z / m,
		k * tau * e / m,
	})
	v := matrix.Similarity(g, fm.fp.SubCovIndices([]int{ti, mi, mi + 1, mi + 2, mi + 3}))
	return k * tau * m, math.Sqrt(math.Max(v.At(0, 0), 0))
}
