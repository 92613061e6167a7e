package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are "<MODULE>_<nnn>".
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeStorageError       ErrorCode = "COMMON_014"
	ErrCodeMessagingError     ErrorCode = "COMMON_015"
	ErrCodeUnknown            ErrorCode = "COMMON_999"
)

// Projection Module Error Codes
const (
	ErrCodeProjectionEmpty     ErrorCode = "PROJ_001"
	ErrCodeProjectionMalformed ErrorCode = "PROJ_002"
	ErrCodeLevelMissing        ErrorCode = "PROJ_003"
	ErrCodeFeatureNotFound     ErrorCode = "PROJ_004"
	ErrCodeSnapshotNotFound    ErrorCode = "PROJ_005"
	ErrCodeSourceUnsupported   ErrorCode = "PROJ_006"
)

// Zoom Module Error Codes
const (
	ErrCodeThresholdsInvalid ErrorCode = "ZOOM_001"
	ErrCodeScaleInvalid      ErrorCode = "ZOOM_002"
)

// Session Module Error Codes
const (
	ErrCodeSessionNotFound ErrorCode = "SESS_001"
	ErrCodeSessionClosed   ErrorCode = "SESS_002"
	ErrCodeEventInvalid    ErrorCode = "SESS_003"
	ErrCodeSessionLimit    ErrorCode = "SESS_004"
)

// Upstream Backend Error Codes
const (
	ErrCodeUpstreamUnavailable ErrorCode = "UPS_001"
	ErrCodeUpstreamStatus      ErrorCode = "UPS_002"
	ErrCodeUpstreamDecode      ErrorCode = "UPS_003"
)

// Short aliases used at call sites.
const (
	CodeOK                 = ErrorCode("OK")
	CodeUnknown            = ErrCodeUnknown
	CodeInternal           = ErrCodeInternal
	CodeInvalidParam       = ErrCodeBadRequest
	CodeNotFound           = ErrCodeNotFound
	CodeConflict           = ErrCodeConflict
	CodeServiceUnavailable = ErrCodeServiceUnavailable

	CodeProjectionEmpty     = ErrCodeProjectionEmpty
	CodeProjectionMalformed = ErrCodeProjectionMalformed
	CodeLevelMissing        = ErrCodeLevelMissing
	CodeFeatureNotFound     = ErrCodeFeatureNotFound
	CodeSnapshotNotFound    = ErrCodeSnapshotNotFound

	CodeSessionNotFound = ErrCodeSessionNotFound
	CodeSessionClosed   = ErrCodeSessionClosed
	CodeEventInvalid    = ErrCodeEventInvalid

	CodeUpstreamUnavailable = ErrCodeUpstreamUnavailable
	CodeUpstreamStatus      = ErrCodeUpstreamStatus
	CodeUpstreamDecode      = ErrCodeUpstreamDecode
)

// ErrorCodeHTTPStatus maps each code to the HTTP status returned by the API.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeProjectionEmpty:     http.StatusUnprocessableEntity,
	ErrCodeProjectionMalformed: http.StatusUnprocessableEntity,
	ErrCodeLevelMissing:        http.StatusUnprocessableEntity,
	ErrCodeFeatureNotFound:     http.StatusNotFound,
	ErrCodeSnapshotNotFound:    http.StatusNotFound,
	ErrCodeSourceUnsupported:   http.StatusBadRequest,

	ErrCodeThresholdsInvalid: http.StatusBadRequest,
	ErrCodeScaleInvalid:      http.StatusBadRequest,

	ErrCodeSessionNotFound: http.StatusNotFound,
	ErrCodeSessionClosed:   http.StatusGone,
	ErrCodeEventInvalid:    http.StatusBadRequest,
	ErrCodeSessionLimit:    http.StatusTooManyRequests,

	ErrCodeUpstreamUnavailable: http.StatusBadGateway,
	ErrCodeUpstreamStatus:      http.StatusBadGateway,
	ErrCodeUpstreamDecode:      http.StatusBadGateway,
}

// ErrorCodeMessage holds the default message per code.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeCacheError:         "cache error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeProjectionEmpty:     "projection has no points",
	ErrCodeProjectionMalformed: "projection is malformed",
	ErrCodeLevelMissing:        "cluster level missing",
	ErrCodeFeatureNotFound:     "feature not found",
	ErrCodeSnapshotNotFound:    "projection snapshot not found",
	ErrCodeSourceUnsupported:   "unsupported projection source",

	ErrCodeThresholdsInvalid: "invalid zoom thresholds",
	ErrCodeScaleInvalid:      "invalid zoom scale",

	ErrCodeSessionNotFound: "session not found",
	ErrCodeSessionClosed:   "session closed",
	ErrCodeEventInvalid:    "invalid session event",
	ErrCodeSessionLimit:    "session limit reached",

	ErrCodeUpstreamUnavailable: "upstream backend unavailable",
	ErrCodeUpstreamStatus:      "upstream backend returned an error",
	ErrCodeUpstreamDecode:      "failed to decode upstream response",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
