package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/errors"
	"github.com/archivekit/vaultline/metrics"
	"github.com/julienschmidt/httprouter"
)

// CapacityMiddleware gates the webhook intake against a single in-flight
// job ceiling (spec §4.1 "exposes a job-status endpoint" implies bounded
// concurrency upstream of the queue). Generalized from the teacher's
// clip-vs-regular-VOD dual ceiling down to one ceiling, since this system
// has exactly one job shape rather than two.
type CapacityMiddleware struct {
	requestsInFlight atomic.Int64
}

// HasCapacity wraps next, returning 429 once jobsInFlight plus the requests
// this middleware is currently handling (including this one) exceeds
// config.MaxJobsInFlight, the same "count in-flight work, reject beyond a
// ceiling" shape as the teacher's HasCapacity.
func (c *CapacityMiddleware) HasCapacity(jobsInFlight func() int, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		metrics.Metrics.HTTPRequestsInFlight.Add(1)
		defer metrics.Metrics.HTTPRequestsInFlight.Add(-1)

		inFlightReqs := c.requestsInFlight.Add(1)
		defer c.requestsInFlight.Add(-1)

		if jobsInFlight()+int(inFlightReqs) > config.MaxJobsInFlight {
			errors.WriteHTTPTooManyRequests(w, "too many jobs in flight", nil)
			return
		}

		next(w, r, ps)
	}
}
