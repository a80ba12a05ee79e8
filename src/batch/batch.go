// Package batch fits many independent candidates in parallel.
package batch

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/belle2/basf2-sub109/src/config"
	"github.com/belle2/basf2-sub109/src/metrics"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/treefit"
)

// Result is the outcome of fitting one candidate.
type Result struct {
	Candidate  *particle.Particle
	Status     treefit.VertexStatus
	Chi2       float64
	NDF        int
	PValue     float64
	Iterations int
	Err        error
}

// Runner fits candidates with one FitManager each. Candidates must not share
// particles.
type Runner struct {
	cfg      config.ConstraintConfiguration
	workers  int
	recorder metrics.FitRecorder
	log      *log.Entry
	update   bool
}

type runnerOptions struct {
	workers  int
	recorder metrics.FitRecorder
	logger   *log.Entry
	update   bool
}

// Option configures a Runner
type Option func(*runnerOptions)

// WithWorkers bounds the number of fits running at once.
func WithWorkers(n int) Option {
	return func(o *runnerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithRecorder(r metrics.FitRecorder) Option {
	return func(o *runnerOptions) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithLogger(l *log.Entry) Option {
	return func(o *runnerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithUpdate writes successful fits back into the candidates.
func WithUpdate(update bool) Option {
	return func(o *runnerOptions) {
		o.update = update
	}
}

var defaultRunnerOptions = runnerOptions{
	workers:  4,
	recorder: metrics.Nop,
	update:   true,
}

func NewRunner(cfg config.ConstraintConfiguration, opts ...Option) *Runner {
	options := defaultRunnerOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = log.WithField("component", "batch")
	}
	return &Runner{
		cfg:      cfg.Clone(),
		workers:  options.workers,
		recorder: options.recorder,
		log:      options.logger,
		update:   options.update,
	}
}

// Run fits every candidate and returns the results in input order. A fit
// is never interrupted; cancellation is checked before each candidate and
// the ones not started report the context error.
func (r *Runner) Run(ctx context.Context, candidates []*particle.Particle) ([]Result, error) {
	results := make([]Result, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	for i, cand := range candidates {
		results[i] = Result{Candidate: cand, Status: treefit.UnFitted}
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			results[i] = r.fit(cand)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return results, errors.Wrap(err, "batch cancelled")
	}
	return results, nil
}

func (r *Runner) fit(cand *particle.Particle) Result {
	fm := treefit.NewFitManager(cand, r.cfg,
		treefit.WithLogger(r.log),
		treefit.WithRecorder(r.recorder),
	)
	fm.Fit()
	if r.update && fm.Status() == treefit.Success {
		fm.UpdateTree()
	}
	if fm.Status() != treefit.Success && r.update {
		cand.SetPValue(-1)
	}
	return Result{
		Candidate:  cand,
		Status:     fm.Status(),
		Chi2:       fm.Chi2(),
		NDF:        fm.NDF(),
		PValue:     fm.PValue(),
		Iterations: fm.Iterations(),
		Err:        fm.Err(),
	}
}

// Select keeps the successful fits with a p-value of at least cl. A negative
// cl keeps every result.
func Select(results []Result, cl float64) []Result {
	if cl < 0 {
		return results
	}
	var out []Result
	for _, res := range results {
		if res.Status == treefit.Success && res.PValue >= cl {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies results by status.
func Counts(results []Result) map[treefit.VertexStatus]int {
	out := make(map[treefit.VertexStatus]int)
	for _, res := range results {
		out[res.Status]++
	}
	return out
}
