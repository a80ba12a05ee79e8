package config

import (
	"os"
	"strconv"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/belle2/basf2-sub109/src/pdg"
)

// file is the on-disk form. Particle lists accept names or codes.
type file struct {
	Precision              *float64  `yaml:"precision" mapstructure:"precision"`
	MaxIterations          *int      `yaml:"max_iterations" mapstructure:"max_iterations"`
	UpdateDaughters        *bool     `yaml:"update_daughters" mapstructure:"update_daughters"`
	ForceP4Sum             *bool     `yaml:"force_p4_sum" mapstructure:"force_p4_sum"`
	UseReferencing         *bool     `yaml:"use_referencing" mapstructure:"use_referencing"`
	UseExistingVertex      *bool     `yaml:"use_existing_vertex" mapstructure:"use_existing_vertex"`
	MassConstraints        []string  `yaml:"mass_constraints" mapstructure:"mass_constraints"`
	LifetimeConstraints    []string  `yaml:"lifetime_constraints" mapstructure:"lifetime_constraints"`
	TreatAsResonance       []string  `yaml:"treat_as_resonance" mapstructure:"treat_as_resonance"`
	ConversionConstraint   *bool     `yaml:"conversion_constraint" mapstructure:"conversion_constraint"`
	UseResonanceWidths     *bool     `yaml:"resonance_widths" mapstructure:"resonance_widths"`
	ResonanceCTauThreshold *float64  `yaml:"resonance_ctau_threshold" mapstructure:"resonance_ctau_threshold"`
	ConfidenceLevel        *float64  `yaml:"confidence_level" mapstructure:"confidence_level"`
	BeamSpot               *beamSpot `yaml:"beamspot" mapstructure:"beamspot"`
}

type beamSpot struct {
	Enabled    bool        `yaml:"enabled" mapstructure:"enabled"`
	Position   []float64   `yaml:"position" mapstructure:"position"`
	Covariance [][]float64 `yaml:"covariance" mapstructure:"covariance"`
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (ConstraintConfiguration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ConstraintConfiguration{}, errors.Wrapf(err, "config: read %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return ConstraintConfiguration{}, errors.Wrapf(err, "config: %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (ConstraintConfiguration, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return ConstraintConfiguration{}, errors.Wrap(err, "config: decode yaml")
	}
	return f.apply(Default())
}

// FromMap decodes a loosely typed option map, as handed over by a steering
// script, on top of Default. Strings are converted to numbers and booleans
// where the target field asks for them.
func FromMap(m map[string]any) (ConstraintConfiguration, error) {
	var f file
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &f,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return ConstraintConfiguration{}, errors.Wrap(err, "config: decoder")
	}
	if err := dec.Decode(m); err != nil {
		return ConstraintConfiguration{}, errors.Wrap(err, "config: decode map")
	}
	return f.apply(Default())
}

func (f file) apply(cfg ConstraintConfiguration) (ConstraintConfiguration, error) {
	setIf(&cfg.Precision, f.Precision)
	setIf(&cfg.MaxIterations, f.MaxIterations)
	setIf(&cfg.UpdateDaughters, f.UpdateDaughters)
	setIf(&cfg.ForceP4Sum, f.ForceP4Sum)
	setIf(&cfg.UseReferencing, f.UseReferencing)
	setIf(&cfg.UseExistingVertex, f.UseExistingVertex)
	setIf(&cfg.ConversionConstraint, f.ConversionConstraint)
	setIf(&cfg.UseResonanceWidths, f.UseResonanceWidths)
	setIf(&cfg.ResonanceCTauThreshold, f.ResonanceCTauThreshold)
	setIf(&cfg.ConfidenceLevel, f.ConfidenceLevel)

	var err error
	if cfg.MassConstraints, err = resolveCodes(f.MassConstraints); err != nil {
		return ConstraintConfiguration{}, err
	}
	if cfg.LifetimeConstraints, err = resolveCodes(f.LifetimeConstraints); err != nil {
		return ConstraintConfiguration{}, err
	}
	if cfg.TreatAsResonance, err = resolveCodes(f.TreatAsResonance); err != nil {
		return ConstraintConfiguration{}, err
	}

	if bs := f.BeamSpot; bs != nil {
		cfg.BeamSpot.Enabled = bs.Enabled
		if len(bs.Position) != 0 {
			if len(bs.Position) != 3 {
				return ConstraintConfiguration{}, errors.Wrapf(ErrInvalid, "beam spot position needs 3 values, got %d", len(bs.Position))
			}
			cfg.BeamSpot.Position.X = bs.Position[0]
			cfg.BeamSpot.Position.Y = bs.Position[1]
			cfg.BeamSpot.Position.Z = bs.Position[2]
		}
		if len(bs.Covariance) != 0 {
			if len(bs.Covariance) != 3 {
				return ConstraintConfiguration{}, errors.Wrap(ErrInvalid, "beam spot covariance must be 3x3")
			}
			for i, row := range bs.Covariance {
				if len(row) != 3 {
					return ConstraintConfiguration{}, errors.Wrap(ErrInvalid, "beam spot covariance must be 3x3")
				}
				copy(cfg.BeamSpot.Covariance[i][:], row)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return ConstraintConfiguration{}, err
	}
	return cfg, nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// resolveCodes maps names or codes to absolute PDG codes.
func resolveCodes(in []string) ([]int, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(in))
	for _, s := range in {
		p, err := pdg.Resolve(s)
		if err != nil {
			return nil, errors.Wrap(ErrInvalid, err.Error())
		}
		code := p.Code
		if code < 0 {
			code = -code
		}
		out = append(out, code)
	}
	return out, nil
}

// document is the YAML form of a resolved configuration, used to print it.
type document struct {
	Precision              float64  `yaml:"precision"`
	MaxIterations          int      `yaml:"max_iterations"`
	UpdateDaughters        bool     `yaml:"update_daughters"`
	ForceP4Sum             bool     `yaml:"force_p4_sum"`
	UseReferencing         bool     `yaml:"use_referencing"`
	UseExistingVertex      bool     `yaml:"use_existing_vertex"`
	MassConstraints        []string `yaml:"mass_constraints,omitempty"`
	LifetimeConstraints    []string `yaml:"lifetime_constraints,omitempty"`
	TreatAsResonance       []string `yaml:"treat_as_resonance,omitempty"`
	ConversionConstraint   bool     `yaml:"conversion_constraint"`
	UseResonanceWidths     bool     `yaml:"resonance_widths"`
	ResonanceCTauThreshold float64  `yaml:"resonance_ctau_threshold"`
	ConfidenceLevel        float64  `yaml:"confidence_level"`
	BeamSpot               beamSpot `yaml:"beamspot"`
}

// Marshal renders cfg as YAML that Parse reads back.
func Marshal(cfg ConstraintConfiguration) ([]byte, error) {
	doc := document{
		Precision:              cfg.Precision,
		MaxIterations:          cfg.MaxIterations,
		UpdateDaughters:        cfg.UpdateDaughters,
		ForceP4Sum:             cfg.ForceP4Sum,
		UseReferencing:         cfg.UseReferencing,
		UseExistingVertex:      cfg.UseExistingVertex,
		MassConstraints:        names(cfg.MassConstraints),
		LifetimeConstraints:    names(cfg.LifetimeConstraints),
		TreatAsResonance:       names(cfg.TreatAsResonance),
		ConversionConstraint:   cfg.ConversionConstraint,
		UseResonanceWidths:     cfg.UseResonanceWidths,
		ResonanceCTauThreshold: cfg.ResonanceCTauThreshold,
		ConfidenceLevel:        cfg.ConfidenceLevel,
		BeamSpot: beamSpot{
			Enabled:  cfg.BeamSpot.Enabled,
			Position: []float64{cfg.BeamSpot.Position.X, cfg.BeamSpot.Position.Y, cfg.BeamSpot.Position.Z},
		},
	}
	for _, row := range cfg.BeamSpot.Covariance {
		doc.BeamSpot.Covariance = append(doc.BeamSpot.Covariance, []float64{row[0], row[1], row[2]})
	}
	out, err := yaml.Marshal(doc)
	return out, errors.Wrap(err, "config: encode yaml")
}

func names(codes []int) []string {
	var out []string
	for _, c := range codes {
		if _, ok := pdg.Lookup(c); ok {
			out = append(out, pdg.Name(c))
		} else {
			out = append(out, strconv.Itoa(c))
		}
	}
	return out
}
