package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/cravepos/brigade/pkg/auth"
	"github.com/cravepos/brigade/pkg/claim"
	"github.com/cravepos/brigade/pkg/log"
	"github.com/cravepos/brigade/pkg/manager"
	"github.com/cravepos/brigade/pkg/storage"
	"github.com/cravepos/brigade/pkg/types"
)

// maxBodyBytes bounds request bodies. Revision payloads are the largest
// legitimate bodies and stay well under this.
const maxBodyBytes = 4 << 20

// apiError carries an explicit HTTP status through a handler return path.
// Handlers use it for conditions that have no domain sentinel, such as
// scope violations.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func errBadRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func errForbidden(format string, args ...any) error {
	return &apiError{status: http.StatusForbidden, message: fmt.Sprintf(format, args...)}
}

// writeJSON encodes v with the given status. Encoding failures are logged
// and abandoned; the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps a domain error to the HTTP taxonomy and emits the
// {"message": ...} body every non-2xx response carries.
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal details stay in the log.
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("internal error")
		message = "internal error"
	}
	writeJSON(w, status, &types.ErrorResponse{Message: message})
}

// statusForError is the single place domain errors become HTTP statuses.
func statusForError(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status
	}
	var upstream *claim.UpstreamError
	if errors.As(err, &upstream) {
		return http.StatusBadGateway
	}

	switch {
	case errors.Is(err, storage.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrBootstrapToken),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountDisabled):
		return http.StatusUnauthorized
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, manager.ErrNotLeader):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads and decodes a request body into v. An empty body is
// treated as {} so optional-body endpoints accept bare POSTs; malformed
// JSON is a 400.
func decodeJSON(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	defer func() { _, _ = io.Copy(io.Discard, body) }()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errBadRequest("invalid request body: %v", err)
	}
	return nil
}
