package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"rentflow-system/internal/apperr"
	"rentflow-system/internal/scanner"
)

type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    interface{}         `json:"data,omitempty"`
	Meta    interface{}         `json:"meta,omitempty"`
	Errors  []apperr.FieldError `json:"errors,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

// StatusFor maps a service error onto the HTTP status the gateway answers with.
func StatusFor(err error) int {
	var scanErr *scanner.ScanError
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &scanErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleServiceError writes the error response and aborts. It reports whether err was set.
func handleServiceError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	code := StatusFor(err)
	resp := errorResponse(err.Error())
	switch code {
	case http.StatusBadRequest:
		resp.Message = "Validation failed"
		resp.Errors = apperr.Fields(err)
		if len(resp.Errors) == 0 {
			resp.Message = err.Error()
		}
	case http.StatusBadGateway:
		resp.Message = "Scanner engine error: " + err.Error()
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		resp.Message = "Internal server error"
	}

	c.AbortWithStatusJSON(code, resp)
	return true
}

func parseIDParam(c *gin.Context, param string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(param), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse("Invalid "+param))
		return 0, false
	}
	return id, true
}

func parseInt64Query(c *gin.Context, param string) *int64 {
	str := c.Query(param)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		return nil
	}
	return &val
}

func parseBoolQuery(c *gin.Context, param string) *bool {
	str := c.Query(param)
	if str == "" {
		return nil
	}
	val, err := strconv.ParseBool(str)
	if err != nil {
		return nil
	}
	return &val
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse("Invalid request format: "+err.Error()))
		return false
	}
	return true
}
