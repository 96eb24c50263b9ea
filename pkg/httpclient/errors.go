package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/errors"
	"github.com/nicolemoreira12/PROYECTO-AUTONOMO-sub001/pkg/httputil"
)

const maxErrorBody = 64 << 10

// clientSentinels ties 4xx statuses to the sentinel a caller can match with
// errors.Is. Statuses without an entry produce an AppError with no sentinel.
var clientSentinels = map[int]error{
	http.StatusBadRequest:      apperrors.ErrInvalidInput,
	http.StatusUnauthorized:    apperrors.ErrUnauthorized,
	http.StatusForbidden:       apperrors.ErrForbidden,
	http.StatusNotFound:        apperrors.ErrNotFound,
	http.StatusConflict:        apperrors.ErrConflict,
	http.StatusGone:            apperrors.ErrGone,
	http.StatusLocked:          apperrors.ErrAccountLocked,
	http.StatusTooManyRequests: apperrors.ErrRateLimited,
}

// ServerError is returned for a 5xx response. It counts as a breaker failure.
type ServerError struct {
	Status int
	Body   string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Status, e.Body)
}

// ParseResponseError turns a non-2xx response from a service that speaks the
// httputil envelope into an error, then closes the body. 4xx responses
// become *apperrors.AppError carrying the remote code, 5xx responses become
// *ServerError, and anything else a plain error.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	code, message := decodeErrorBody(raw)
	switch {
	case IsClientError(resp.StatusCode):
		if code == "" {
			return fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, message)
		}
		appErr := &apperrors.AppError{
			Code:    code,
			Message: service + ": " + message,
			Status:  resp.StatusCode,
			Err:     clientSentinels[resp.StatusCode],
		}
		if ra, ok := retryAfter(resp); ok {
			appErr.RetryAfter = ra
		}
		return appErr
	case resp.StatusCode >= 500:
		return &ServerError{Status: resp.StatusCode, Body: service + ": " + message}
	default:
		return fmt.Errorf("%s returned unexpected status %d", service, resp.StatusCode)
	}
}

// decodeErrorBody extracts the code and message of an error envelope. Bodies
// that are not an envelope yield an empty code and the trimmed raw text.
func decodeErrorBody(raw []byte) (code, message string) {
	var env httputil.Response
	if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Code != "" {
		return env.Error.Code, env.Error.Message
	}
	return "", strings.TrimSpace(string(raw))
}

// IsClientError reports whether status is a 4xx. Client errors are answers,
// not outages, and must not be retried or count against a breaker.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
