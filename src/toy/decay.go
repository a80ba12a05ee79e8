package toy

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/belle2/basf2-sub109/src/pdg"
)

// ErrInvalidDecay is wrapped by every error about a decay description.
var ErrInvalidDecay = errors.New("toy: invalid decay")

// Decay describes one node of a generated decay tree. Only the head needs a
// momentum; daughters get theirs from phase space. A node either lists its
// Daughters or a set of Channels, one of which is drawn per event according
// to the branching fractions.
type Decay struct {
	Particle  string    `yaml:"particle"`
	Momentum  []float64 `yaml:"momentum,omitempty"`
	Daughters []Decay   `yaml:"daughters,omitempty"`
	Channels  []Channel `yaml:"channels,omitempty"`
}

// Channel is one decay mode. BR need not be normalised.
type Channel struct {
	BR        float64 `yaml:"br"`
	Daughters []Decay `yaml:"daughters"`
}

// LoadDecay reads a YAML decay description.
func LoadDecay(path string) (Decay, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Decay{}, errors.Wrapf(err, "reading %s", path)
	}
	d, err := ParseDecay(raw)
	if err != nil {
		return Decay{}, errors.Wrapf(err, "parsing %s", path)
	}
	return d, nil
}

func ParseDecay(raw []byte) (Decay, error) {
	var d Decay
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Decay{}, errors.Wrap(ErrInvalidDecay, err.Error())
	}
	if err := d.Validate(); err != nil {
		return Decay{}, err
	}
	return d, nil
}

// Validate checks that every name is known, the head momentum has three
// components and every decay is kinematically open.
func (d Decay) Validate() error {
	if d.Momentum != nil && len(d.Momentum) != 3 {
		return errors.Wrapf(ErrInvalidDecay, "%s: momentum needs 3 components, got %d", d.Particle, len(d.Momentum))
	}
	return d.validate()
}

func (d Decay) validate() error {
	info, err := pdg.Resolve(d.Particle)
	if err != nil {
		return errors.Wrap(ErrInvalidDecay, err.Error())
	}
	if len(d.Channels) == 0 {
		return validateDaughters(info, d.Daughters)
	}
	if len(d.Daughters) > 0 {
		return errors.Wrapf(ErrInvalidDecay, "%s: daughters and channels are exclusive", info.Name)
	}
	brs := make([]float64, len(d.Channels))
	for i, ch := range d.Channels {
		if len(ch.Daughters) == 0 {
			return errors.Wrapf(ErrInvalidDecay, "%s: channel %d has no daughters", info.Name, i)
		}
		if err := validateDaughters(info, ch.Daughters); err != nil {
			return err
		}
		brs[i] = ch.BR
	}
	if _, err := newAliasTable(brs); err != nil {
		return errors.Wrapf(ErrInvalidDecay, "%s: branching fractions: %v", info.Name, err)
	}
	return nil
}

func validateDaughters(info pdg.Particle, daughters []Decay) error {
	if len(daughters) == 0 {
		return nil
	}
	if len(daughters) == 1 {
		return errors.Wrapf(ErrInvalidDecay, "%s: a decay needs at least two daughters", info.Name)
	}
	sum := 0.0
	for _, dd := range daughters {
		di, err := pdg.Resolve(dd.Particle)
		if err != nil {
			return errors.Wrap(ErrInvalidDecay, err.Error())
		}
		sum += di.Mass
		if err := dd.validate(); err != nil {
			return err
		}
	}
	if sum >= info.Mass {
		return errors.Wrapf(ErrInvalidDecay, "%s: daughters heavier than mother (%.4f >= %.4f GeV)", info.Name, sum, info.Mass)
	}
	return nil
}

// Marshal renders d as YAML.
func (d Decay) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}
