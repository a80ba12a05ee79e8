package main

import (
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go-hep.org/x/hep/hbook"

	"github.com/belle2/basf2-sub109/src/batch"
	"github.com/belle2/basf2-sub109/src/metrics"
	"github.com/belle2/basf2-sub109/src/particle"
	"github.com/belle2/basf2-sub109/src/toy"
	"github.com/belle2/basf2-sub109/src/treefit"
)

// K_S0 -> pi+ pi- flying through the tracker.
var defaultDecay = toy.Decay{
	Particle: "K_S0",
	Momentum: []float64{1.0, 0.3, 0.2},
	Daughters: []toy.Decay{
		{Particle: "pi+"},
		{Particle: "pi-"},
	},
}

var toyCmd = &cobra.Command{
	Use:   "toy",
	Short: "Generate toy candidates, fit them and summarise the fit quality",
	RunE:  runToy,
}

func init() {
	toyCmd.Flags().String("decay", "", "decay description YAML (K_S0 -> pi+ pi- when empty)")
	toyCmd.Flags().IntP("events", "n", 1000, "number of candidates")
	toyCmd.Flags().Int("workers", 4, "concurrent fits")
	toyCmd.Flags().Uint64("seed", 1, "generator seed")
	toyCmd.Flags().Float64("bz", 1.5, "solenoid field in tesla")
	toyCmd.Flags().Bool("smear", true, "smear the measurements")
	toyCmd.Flags().Float64("cl", -1, "confidence level cut applied to the summary, negative keeps all")
	rootCmd.AddCommand(toyCmd)
}

func runToy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	decay := defaultDecay
	if path, _ := cmd.Flags().GetString("decay"); path != "" {
		if decay, err = toy.LoadDecay(path); err != nil {
			return err
		}
	}
	n, _ := cmd.Flags().GetInt("events")
	workers, _ := cmd.Flags().GetInt("workers")
	seed, _ := cmd.Flags().GetUint64("seed")
	bz, _ := cmd.Flags().GetFloat64("bz")
	smear, _ := cmd.Flags().GetBool("smear")
	cl, _ := cmd.Flags().GetFloat64("cl")

	gen := toy.NewGenerator(toy.WithSeed(seed), toy.WithBField(bz), toy.WithSmearing(smear))
	events := make([]toy.Event, 0, n)
	cands := make([]*particle.Particle, 0, n)
	for i := 0; i < n; i++ {
		ev, err := gen.Generate(decay)
		if err != nil {
			return err
		}
		events = append(events, ev)
		cands = append(cands, ev.Head)
	}

	collector := metrics.New()
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	runner := batch.NewRunner(cfg,
		batch.WithWorkers(workers),
		batch.WithRecorder(collector),
	)
	results, err := runner.Run(ctx, cands)
	if err != nil {
		log.WithError(err).Warn("fits interrupted")
	}

	counts := batch.Counts(results)
	statuses := make([]treefit.VertexStatus, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	fmt.Fprintf(cmd.OutOrStdout(), "%d candidates\n", len(results))
	for _, s := range statuses {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %d\n", s, counts[s])
	}

	truth := make(map[*particle.Particle]toy.Truth, len(events))
	for _, ev := range events {
		truth[ev.Head] = ev.Truth[ev.Head]
	}
	pvalues := hbook.NewH1D(20, 0, 1)
	pulls := hbook.NewH1D(40, -5, 5)
	for _, res := range batch.Select(results, cl) {
		if res.Status != treefit.Success {
			continue
		}
		pvalues.Fill(res.PValue, 1)
		if pull, ok := vertexPull(res.Candidate, truth[res.Candidate]); ok {
			pulls.Fill(pull, 1)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "p-value       entries=%d mean=%.3f rms=%.3f\n", pvalues.Entries(), pvalues.XMean(), pvalues.XStdDev())
	fmt.Fprintf(cmd.OutOrStdout(), "vertex pull x entries=%d mean=%.3f rms=%.3f\n", pulls.Entries(), pulls.XMean(), pulls.XStdDev())
	printHistogram(cmd, pvalues, 0, 1)
	return nil
}

// vertexPull is (fitted - true)/sigma of the head decay vertex along x. The
// particle covariance is ordered px py pz E x y z.
func vertexPull(p *particle.Particle, t toy.Truth) (float64, bool) {
	cov := p.Cov()
	if cov == nil || !p.HasVertex() {
		return 0, false
	}
	sigma := math.Sqrt(cov.At(4, 4))
	if !(sigma > 0) {
		return 0, false
	}
	return (p.Vertex().X - t.Decay.X) / sigma, true
}

func printHistogram(cmd *cobra.Command, h *hbook.H1D, lo, hi float64) {
	bins := h.Binning.Bins
	peak := 0.0
	for i := range bins {
		peak = math.Max(peak, bins[i].SumW())
	}
	if peak == 0 {
		return
	}
	width := (hi - lo) / float64(len(bins))
	for i := range bins {
		w := bins[i].SumW()
		bar := int(math.Round(40 * w / peak))
		fmt.Fprintf(cmd.OutOrStdout(), "%5.2f %6.0f %s\n", lo+float64(i)*width, w, strings.Repeat("#", bar))
	}
}
