// Package handlers implements the FeatureScope HTTP API on gin.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/FeatureScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/FeatureScope/internal/interfaces/http/middleware"
	apperrors "github.com/turtacn/FeatureScope/pkg/errors"
)

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// errorBody maps err to a status and body. Errors without an application
// code are masked as internal errors.
func errorBody(err error) (int, ErrorResponse) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrorResponse{
			Code:    string(apperrors.ErrCodeTimeout),
			Message: "request timed out",
		}
	}
	var appErr *apperrors.AppError
	if !apperrors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Code:    string(apperrors.ErrCodeInternal),
			Message: "internal server error",
		}
	}
	status := apperrors.HTTPStatusForCode(appErr.Code)
	resp := ErrorResponse{Code: string(appErr.Code), Message: appErr.Message, Detail: appErr.Detail}
	if status >= http.StatusInternalServerError && appErr.Code == apperrors.ErrCodeInternal {
		resp.Message = "internal server error"
		resp.Detail = ""
	}
	return status, resp
}

// writeAppError aborts the request with the error body for err.
func writeAppError(c *gin.Context, log logging.Logger, err error) {
	status, resp := errorBody(err)
	resp.RequestID = middleware.GetRequestID(c)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			logging.String("route", c.FullPath()),
			logging.String("request_id", resp.RequestID),
			logging.Err(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}
