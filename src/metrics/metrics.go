// Package metrics exports fit statistics to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// FitRecorder is implemented by anything that wants to observe finished
// fits. treefit.Recorder has the same method set.
type FitRecorder interface {
	ObserveFit(status string, iterations int, chi2 float64, ndf int, pvalue float64)
}

// Collector counts fits by status and records the distribution of
// iterations, p-values and chi2/ndf. It is safe for concurrent use.
type Collector struct {
	fits       *prometheus.CounterVec
	iterations prometheus.Histogram
	pvalue     prometheus.Histogram
	chi2ndf    prometheus.Histogram
}

func New() *Collector {
	return &Collector{
		fits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "treefit_fits_total",
				Help: "Number of finished fits by final status",
			},
			[]string{"status"},
		),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "treefit_iterations",
			Help:    "Passes over the constraint list until the fit stopped",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}),
		pvalue: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "treefit_pvalue",
			Help:    "Chi-square probability of successful fits",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		chi2ndf: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "treefit_chi2_per_ndf",
			Help:    "Chi-square per degree of freedom of successful fits",
			Buckets: prometheus.ExponentialBuckets(0.125, 2, 10),
		}),
	}
}

// ObserveFit records one fit. Quality histograms only see successful fits
// with at least one degree of freedom.
func (c *Collector) ObserveFit(status string, iterations int, chi2 float64, ndf int, pvalue float64) {
	c.fits.WithLabelValues(status).Inc()
	c.iterations.Observe(float64(iterations))
	if status != "Success" || ndf <= 0 {
		return
	}
	c.pvalue.Observe(pvalue)
	c.chi2ndf.Observe(chi2 / float64(ndf))
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.fits.Describe(ch)
	c.iterations.Describe(ch)
	c.pvalue.Describe(ch)
	c.chi2ndf.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.fits.Collect(ch)
	c.iterations.Collect(ch)
	c.pvalue.Collect(ch)
	c.chi2ndf.Collect(ch)
}

// Fits returns the counter for one status, for callers that print a
// summary without scraping.
func (c *Collector) Fits(status string) prometheus.Counter {
	return c.fits.WithLabelValues(status)
}

type nop struct{}

func (nop) ObserveFit(string, int, float64, int, float64) {}

// Nop discards every observation.
var Nop FitRecorder = nop{}
