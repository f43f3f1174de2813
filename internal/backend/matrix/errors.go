package matrix

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"otogi-roomdb/pkg/otogi"

	"maunium.net/go/mautrix"
)

func mapMatrixError(
	operation otogi.RoomStateOperation,
	address otogi.StateAddress,
	err error,
) error {
	if err == nil {
		return nil
	}

	stateErr := &otogi.RoomStateError{
		Operation: operation,
		Kind:      otogi.RoomStateErrorKindUnknown,
		Address:   address,
		Cause:     err,
	}

	httpErr, ok := asHTTPError(err)
	if !ok {
		return stateErr
	}
	if httpErr.Response != nil {
		stateErr.StatusCode = httpErr.Response.StatusCode
	}
	if httpErr.RespError != nil {
		stateErr.Code = httpErr.RespError.ErrCode
	}
	stateErr.Kind = classifyMatrixError(stateErr.StatusCode, stateErr.Code)
	if stateErr.Kind == otogi.RoomStateErrorKindRateLimited {
		stateErr.RetryAfter = retryAfter(httpErr)
	}

	return stateErr
}

// retryAfter reads retry_after_ms from the error body, then the Retry-After
// header in seconds.
func retryAfter(httpErr mautrix.HTTPError) time.Duration {
	if httpErr.RespError != nil {
		if millis, ok := httpErr.RespError.ExtraData["retry_after_ms"].(float64); ok && millis > 0 {
			return time.Duration(millis) * time.Millisecond
		}
	}
	if httpErr.Response != nil {
		seconds, err := strconv.Atoi(strings.TrimSpace(httpErr.Response.Header.Get("Retry-After")))
		if err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 0
}

func asHTTPError(err error) (mautrix.HTTPError, bool) {
	var httpErr mautrix.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr, true
	}

	var httpErrPtr *mautrix.HTTPError
	if errors.As(err, &httpErrPtr) && httpErrPtr != nil {
		return *httpErrPtr, true
	}

	return mautrix.HTTPError{}, false
}

func classifyMatrixError(statusCode int, errCode string) otogi.RoomStateErrorKind {
	switch strings.ToUpper(strings.TrimSpace(errCode)) {
	case "M_NOT_FOUND":
		return otogi.RoomStateErrorKindNotFound
	case "M_FORBIDDEN":
		return otogi.RoomStateErrorKindForbidden
	case "M_LIMIT_EXCEEDED":
		return otogi.RoomStateErrorKindRateLimited
	}

	switch {
	case statusCode == http.StatusNotFound:
		return otogi.RoomStateErrorKindNotFound
	case statusCode == http.StatusForbidden:
		return otogi.RoomStateErrorKindForbidden
	case statusCode == http.StatusTooManyRequests:
		return otogi.RoomStateErrorKindRateLimited
	case statusCode >= 500:
		return otogi.RoomStateErrorKindTemporary
	default:
		return otogi.RoomStateErrorKindUnknown
	}
}
