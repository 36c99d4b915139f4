package middleware

import (
	"net/http"

	"github.com/archivekit/vaultline/errors"
	"github.com/julienschmidt/httprouter"
)

// RequireSecret enforces the X-Webhook-Secret check of spec §4.1b
// validation rule 4: when secret is empty, authentication is skipped
// entirely; a missing header is 401, a wrong value is 403. This replaces
// the teacher's Bearer/JWT IsAuthorized, which has no analogue in a
// shared-secret webhook intake.
func RequireSecret(secret string) func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		if secret == "" {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			got := r.Header.Get("X-Webhook-Secret")
			if got == "" {
				errors.WriteHTTPUnauthorized(w, "missing X-Webhook-Secret header", nil)
				return
			}
			if got != secret {
				errors.WriteHTTPForbidden(w, "invalid X-Webhook-Secret", nil)
				return
			}
			next(w, r, ps)
		}
	}
}
