package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/archivekit/vaultline/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/xeipuuv/gojsonschema"
)

type APIError struct {
	Msg    string `json:"message"`
	Status int    `json:"status"`
	Err    error  `json:"-"`
}

func writeHttpError(w http.ResponseWriter, msg string, status int, err error) APIError {
	w.WriteHeader(status)

	var errorDetail string
	if err != nil {
		errorDetail = err.Error()
	}

	if err := json.NewEncoder(w).Encode(map[string]string{"error": msg, "error_detail": errorDetail}); err != nil {
		log.LogNoRequestID("error writing HTTP error", "http_error_msg", msg, "error", err)
	}
	return APIError{msg, status, err}
}

// HTTP Errors, mapped from the taxonomy in section 7 of the spec.
func WriteHTTPUnauthorized(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnauthorized, err)
}

func WriteHTTPForbidden(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusForbidden, err)
}

func WriteHTTPBadRequest(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusBadRequest, err)
}

func WriteHTTPUnprocessableEntity(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnprocessableEntity, err)
}

func WriteHTTPUnsupportedMediaType(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusUnsupportedMediaType, err)
}

func WriteHTTPNotFound(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusNotFound, err)
}

func WriteHTTPTooManyRequests(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusTooManyRequests, err)
}

func WriteHTTPInternalServerError(w http.ResponseWriter, msg string, err error) APIError {
	return writeHttpError(w, msg, http.StatusInternalServerError, err)
}

func WriteHTTPBadBodySchema(where string, w http.ResponseWriter, errs []gojsonschema.ResultError) APIError {
	sb := strings.Builder{}
	sb.WriteString("Body validation error in ")
	sb.WriteString(where)
	sb.WriteString(" ")
	for i := 0; i < len(errs); i++ {
		sb.WriteString(errs[i].String())
		sb.WriteString(" ")
	}
	return writeHttpError(w, sb.String(), http.StatusUnprocessableEntity, nil)
}

// UnretriableError marks an error as permanent for the retry layer (§4.2,
// §4.5, §4.6): it wraps a backoff.PermanentError so that any cenkalti/backoff
// retry loop consulting errors.As for *backoff.PermanentError stops
// retrying immediately, regardless of which component raised it.
type UnretriableError struct{ error }

func Unretriable(err error) error {
	return UnretriableError{backoff.Permanent(err)}
}

func (e UnretriableError) Unwrap() error {
	return e.error
}

// IsUnretriable returns whether the given error is an unretriable error.
func IsUnretriable(err error) bool {
	return errors.As(err, &UnretriableError{})
}

type ObjectNotFoundError struct {
	msg   string
	cause error
}

func (e ObjectNotFoundError) Error() string {
	return e.msg
}

func (e ObjectNotFoundError) Unwrap() error {
	return e.cause
}

func NewObjectNotFoundError(msg string, cause error) error {
	if cause != nil {
		msg = fmt.Sprintf("ObjectNotFoundError: %s: %s", msg, cause)
	} else {
		msg = fmt.Sprintf("ObjectNotFoundError: %s", msg)
	}
	// every not found is unretriable
	return Unretriable(ObjectNotFoundError{msg: msg, cause: cause})
}

// IsObjectNotFound checks if the error is an ObjectNotFoundError.
func IsObjectNotFound(err error) bool {
	return errors.As(err, &ObjectNotFoundError{})
}

// PipelineBrokenPipeError marks the transcoder/extractor pipe having closed
// mid-stream (§4.3, §4.8). It is deliberately retriable at the error-taxonomy
// level: the coordinator catches it to drop into FALLBACK rather than
// failing the job outright.
type PipelineBrokenPipeError struct{ cause error }

func NewPipelineBrokenPipeError(cause error) error {
	return PipelineBrokenPipeError{cause: cause}
}

func (e PipelineBrokenPipeError) Error() string {
	return fmt.Sprintf("broken pipe in acquire/transcribe pipeline: %s", e.cause)
}

func (e PipelineBrokenPipeError) Unwrap() error {
	return e.cause
}

func IsPipelineBrokenPipe(err error) bool {
	return errors.As(err, &PipelineBrokenPipeError{})
}

// ConfigError marks a misconfiguration discovered at startup; the process
// must fail to start rather than limp along (§7).
type ConfigError struct{ msg string }

func NewConfigError(msg string) error {
	return ConfigError{msg: msg}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("config error: %s", e.msg)
}

var (
	UnauthorisedError = errors.New("UnauthorisedError")
	ErrValidation     = errors.New("ValidationError")
)
