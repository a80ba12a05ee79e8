// Package profiler serves the pprof endpoints.
package profiler

import (
	"net/http"
	_ "net/http/pprof"

	log "github.com/sirupsen/logrus"
)

// StartProfilerServer serves pprof on addr in the background until the
// process exits.
func StartProfilerServer(addr string) {
	go func() {
		log.WithField("addr", addr).Info("profiling server running")
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.WithError(err).Warn("profiling server stopped")
		}
	}()
}
