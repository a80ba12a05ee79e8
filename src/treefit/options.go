package treefit

import (
	log "github.com/sirupsen/logrus"
)

// Recorder receives the outcome of every finished fit.
type Recorder interface {
	ObserveFit(status string, iterations int, chi2 float64, ndf int, pvalue float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveFit(string, int, float64, int, float64) {}

type fitOptions struct {
	logger          *log.Entry
	recorder        Recorder
	maxIterations   *int
	precision       *float64
	updateDaughters *bool
}

// Option configures a FitManager
type Option func(*fitOptions)

// WithLogger sets the entry fit progress is logged to.
func WithLogger(l *log.Entry) Option {
	return func(o *fitOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder reports finished fits to r.
func WithRecorder(r Recorder) Option {
	return func(o *fitOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithMaxIterations overrides the pass limit of the configuration.
func WithMaxIterations(n int) Option {
	return func(o *fitOptions) {
		o.maxIterations = &n
	}
}

// WithPrecision overrides the convergence threshold of the configuration.
func WithPrecision(prec float64) Option {
	return func(o *fitOptions) {
		o.precision = &prec
	}
}

// WithUpdateDaughters overrides whether the whole tree is written back.
func WithUpdateDaughters(v bool) Option {
	return func(o *fitOptions) {
		o.updateDaughters = &v
	}
}

func defaultFitOptions() fitOptions {
	return fitOptions{
		logger:   log.NewEntry(log.StandardLogger()),
		recorder: nopRecorder{},
	}
}
