package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// retries is the per-request accumulator retryHook looks up on CheckRetry's
// ctx under RetriesKey, mirroring the teacher's metrics/monitor_request.go
// Retries accumulator. No caller in this module stores one there, so each
// CheckRetry call counts from a fresh accumulator.
type retries struct {
	count          int
	lastStatusCode int
}

// retryHook builds a retryablehttp.CheckRetry that records retry counts and
// failure counts against clientMetrics, the same accounting the teacher's
// HttpRetryHook does for its own outbound clients (object store, catalog,
// chat platform).
func retryHook(clientMetrics ClientMetrics) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		r, _ := ctx.Value(RetriesKey).(*retries)
		if r == nil {
			r = &retries{}
		}
		host := "unknown"
		if resp != nil && resp.Request != nil && resp.Request.URL != nil {
			host = resp.Request.URL.Host
		}

		statusCode := 0
		switch {
		case resp == nil:
			statusCode = 999
		default:
			statusCode = resp.StatusCode
		}
		r.lastStatusCode = statusCode
		r.count++
		clientMetrics.RetryCount.WithLabelValues(host).Set(float64(r.count))
		if statusCode >= 400 {
			clientMetrics.FailureCount.WithLabelValues(host, fmt.Sprint(statusCode)).Inc()
		}

		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
}

// CatalogHTTPRetryHook is wired into the catalog client's retryablehttp.Client.
var CatalogHTTPRetryHook = func() retryablehttp.CheckRetry { return retryHook(Metrics.CatalogClient) }()

// ObjectStoreHTTPRetryHook is available for an object-store backend that
// talks retryablehttp directly (the S3 SDK path has its own retryer, so this
// is consulted only by backends that go through go-retryablehttp).
var ObjectStoreHTTPRetryHook = func() retryablehttp.CheckRetry { return retryHook(Metrics.ObjectStoreClient) }()

// ChatHTTPRetryHook is wired into the chat-platform REST client.
var ChatHTTPRetryHook = func() retryablehttp.CheckRetry { return retryHook(Metrics.ChatClient) }()
