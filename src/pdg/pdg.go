// Package pdg resolves Belle II particle names and PDG Monte Carlo codes to
// particle properties. Masses, widths and charges are read from the go-hep
// heppdt table; the package adds the EvtGen names, lifetimes of weakly
// decaying species and which species the detector measures directly.
package pdg

import (
	"math"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go-hep.org/x/hep/heppdt"
)

// HbarC in GeV cm, used to turn a width into a decay length.
const HbarC = 1.973269804e-14

// SpeedOfLight in cm/ps.
const SpeedOfLight = 0.0299792458

// ErrUnknownParticle is returned when a name or code is not in the table.
var ErrUnknownParticle = errors.New("pdg: unknown particle")

// Particle holds the properties of one species. CTau is in cm and is
// infinite for stable particles; for resonances it is derived from Width.
type Particle struct {
	Code   int
	Name   string
	Mass   float64 // GeV
	Width  float64 // GeV
	CTau   float64 // cm
	Charge float64 // units of e
}

// IsStable reports whether the particle does not decay within the detector
// model (leptons, photons and long-lived hadrons reaching the tracker).
func (p Particle) IsStable() bool { return math.IsInf(p.CTau, 1) }

// entry maps a Belle II / EvtGen name onto a PDG code. Masses, widths and
// charges come from the heppdt table.
type entry struct {
	code int
	name string
	anti string
	// ctau in cm for weakly decaying species; 0 derives it from the width.
	ctau    float64
	tracked bool
}

var stable = math.Inf(1)

// tracked marks particles that leave a track or a cluster and are treated as
// final state by the fitter even though they decay eventually.
var aliases = []entry{
	{11, "e-", "e+", stable, true},
	{13, "mu-", "mu+", stable, true},
	{15, "tau-", "tau+", 0.008703, false},
	{12, "nu_e", "anti-nu_e", stable, true},
	{22, "gamma", "", stable, true},
	{111, "pi0", "", 2.55e-6, false},
	{211, "pi+", "pi-", stable, true},
	{113, "rho0", "", 0, false},
	{213, "rho+", "rho-", 0, false},
	{221, "eta", "", 0, false},
	{223, "omega", "", 0, false},
	{331, "eta'", "", 0, false},
	{333, "phi", "", 0, false},
	{130, "K_L0", "", stable, true},
	{310, "K_S0", "", 2.6844, false},
	{311, "K0", "anti-K0", 2.6844, false},
	{321, "K+", "K-", stable, true},
	{313, "K*0", "anti-K*0", 0, false},
	{323, "K*+", "K*-", 0, false},
	{2212, "p+", "anti-p-", stable, true},
	{2112, "n0", "anti-n0", stable, true},
	{3122, "Lambda0", "anti-Lambda0", 7.89, false},
	{3222, "Sigma+", "anti-Sigma-", 2.404, false},
	{3112, "Sigma-", "anti-Sigma+", 4.434, false},
	{3312, "Xi-", "anti-Xi+", 4.91, false},
	{421, "D0", "anti-D0", 0.01229, false},
	{411, "D+", "D-", 0.03118, false},
	{431, "D_s+", "D_s-", 0.01499, false},
	{423, "D*0", "anti-D*0", 0, false},
	{413, "D*+", "D*-", 0, false},
	{4122, "Lambda_c+", "anti-Lambda_c-", 0.006062, false},
	{443, "J/psi", "", 0, false},
	{100443, "psi(2S)", "", 0, false},
	{511, "B0", "anti-B0", 0.04557, false},
	{521, "B+", "B-", 0.04911, false},
	{531, "B_s0", "anti-B_s0", 0.04527, false},
	{300553, "Upsilon(4S)", "", 0, false},
	{553, "Upsilon", "", 0, false},
}

var (
	once    sync.Once
	byCode  map[int]Particle
	byName  map[string]Particle
	tracked map[int]bool
)

func load() {
	byCode = make(map[int]Particle, 2*len(aliases))
	byName = make(map[string]Particle, 2*len(aliases))
	tracked = make(map[int]bool)
	for _, e := range aliases {
		ref := heppdt.ParticleByID(heppdt.PID(e.code))
		if ref == nil {
			continue
		}
		p := Particle{Code: e.code, Name: e.name, Mass: ref.Mass, Charge: ref.Charge, CTau: e.ctau}
		if p.CTau == 0 {
			p.Width = ref.Resonance.Width.Value
			if p.Width > 0 {
				p.CTau = HbarC / p.Width
			}
		}
		byCode[p.Code] = p
		byName[p.Name] = p
		tracked[e.code] = e.tracked
		if e.anti != "" {
			a := p
			a.Code, a.Name, a.Charge = -p.Code, e.anti, -p.Charge
			byCode[a.Code] = a
			byName[a.Name] = a
		}
	}
}

// Lookup returns the properties for code.
func Lookup(code int) (Particle, bool) {
	once.Do(load)
	p, ok := byCode[code]
	return p, ok
}

// ByName returns the properties for an EvtGen-style name such as "K_S0" or
// "anti-D0".
func ByName(name string) (Particle, error) {
	once.Do(load)
	p, ok := byName[name]
	if !ok {
		return Particle{}, errors.Wrapf(ErrUnknownParticle, "%q", name)
	}
	return p, nil
}

// Resolve accepts either a name or a decimal code.
func Resolve(s string) (Particle, error) {
	if code, err := strconv.Atoi(s); err == nil {
		if p, ok := Lookup(code); ok {
			return p, nil
		}
		return Particle{}, errors.Wrapf(ErrUnknownParticle, "code %d", code)
	}
	return ByName(s)
}

// Mass returns the nominal mass for code, or 0 if unknown.
func Mass(code int) float64 {
	p, _ := Lookup(code)
	return p.Mass
}

// Name returns the name for code, or its decimal form if unknown.
func Name(code int) string {
	if p, ok := Lookup(code); ok {
		return p.Name
	}
	return strconv.Itoa(code)
}

// IsFinalState reports whether the species reaches the detector and is
// measured directly.
func IsFinalState(code int) bool {
	once.Do(load)
	if code < 0 {
		code = -code
	}
	return tracked[code]
}
