package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/archivekit/vaultline/log"
	"github.com/julienschmidt/httprouter"
)

// HealthResponse is returned by both GET / and GET /health (spec §4.1): no
// auth, liveness/readiness only.
type HealthResponse struct {
	Service   string `json:"service"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (d *Collection) writeHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Service:   d.ServiceName,
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	b, err := json.Marshal(resp)
	if err != nil {
		log.LogNoRequestID("failed to marshal health status: " + err.Error())
		b = []byte(`{"status":"marshalling status failed"}`)
	}

	if _, err := io.Writer.Write(w, b); err != nil {
		log.LogNoRequestID("failed to write HTTP response for " + req.URL.RawPath)
	}
}

// Root serves GET / - liveness, no auth (spec §4.1).
func (d *Collection) Root() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		d.writeHealth(w, req)
	}
}

// Health serves GET /health - readiness, no auth (spec §4.1).
func (d *Collection) Health() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		d.writeHealth(w, req)
	}
}
