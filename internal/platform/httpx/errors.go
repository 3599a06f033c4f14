package httpx

import (
	"context"
	"errors"
	"net/http"
)

// StatusClientClosedRequest is the conventional status for requests the
// client abandoned before a response was written.
const StatusClientClosedRequest = 499

// RespondError is the fallback for errors no handler mapped explicitly.
// Context errors get their own statuses; everything else becomes an opaque
// 500 so internals never leak into responses.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		Problem(w, StatusClientClosedRequest, "Client Closed Request", "")
	case errors.Is(err, context.DeadlineExceeded):
		Problem(w, http.StatusGatewayTimeout, "Timeout", "")
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
