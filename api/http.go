// Package api assembles the Intake Server's HTTP router and serves it
// (spec §4.1), grounded on the teacher's api/http.go ListenAndServe/
// NewCatalystAPIRouter shape (context-cancellable server, graceful
// shutdown), stripped of the balancer/cluster/mapic-specific routes this
// system has no analogue for.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/archivekit/vaultline/config"
	"github.com/archivekit/vaultline/handlers"
	"github.com/archivekit/vaultline/log"
	"github.com/archivekit/vaultline/middleware"
	"github.com/archivekit/vaultline/pipeline"
	"github.com/julienschmidt/httprouter"
)

// ListenAndServe starts the Intake Server and blocks until ctx is
// cancelled, then shuts the HTTP server down gracefully (spec §4.1,
// mirroring the teacher's own ListenAndServe).
func ListenAndServe(ctx context.Context, addr, webhookSecret string, collection *handlers.Collection, coord *pipeline.Coordinator) error {
	router := NewRouter(webhookSecret, collection, coord)
	server := http.Server{Addr: addr, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID("starting intake server", "version", config.Version, "addr", addr)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil && err != http.ErrServerClosed {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

// NewRouter wires every Intake Server route (spec §4.1) behind the logging
// middleware, with the webhook route additionally gated by the shared-secret
// auth check and the in-flight capacity check.
func NewRouter(webhookSecret string, collection *handlers.Collection, coord *pipeline.Coordinator) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withSecret := middleware.RequireSecret(webhookSecret)
	capacity := &middleware.CapacityMiddleware{}

	router.GET("/", withLogging(collection.Root()))
	router.GET("/health", withLogging(collection.Health()))

	webhookHandler := withLogging(withSecret(capacity.HasCapacity(coord.JobsInFlight, collection.ProcessVideo())))
	router.POST("/webhook/process-video", webhookHandler)

	router.GET("/task/:id", withLogging(collection.TaskStatus()))

	return router
}
