package analysis

import (
	"net/http"

	"github.com/sells-group/assessment-cli/internal/resilience"
)

// classify wraps a provider error according to its HTTP status. Only a
// rejection of the request body itself is permanent; auth, quota and
// server-side failures may clear and stay transient. Errors that are
// already classified pass through.
func classify(err error, status int) error {
	if err == nil {
		return nil
	}
	if resilience.IsPermanent(err) {
		return err
	}
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return resilience.NewPermanentError(err, status)
	default:
		return resilience.NewTransientError(err, status)
	}
}
