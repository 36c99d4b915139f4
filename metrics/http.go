package metrics

import (
	"net/http"

	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ListenAndServe starts the internal-only GET /metrics listener (spec §4.1b
// "bound to a separate internal-only listen address", §10.3).
func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.LogNoRequestID("starting metrics listener", "version", config.Version, "addr", addr)
	return http.ListenAndServe(addr, mux)
}
