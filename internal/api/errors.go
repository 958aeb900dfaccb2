package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sedori-tools/repricer/internal/codec"
	"github.com/sedori-tools/repricer/internal/repository"
	"github.com/sedori-tools/repricer/internal/repricer"
)

// Error codes that have no typed error behind them
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeTooLarge      = "FILE_TOO_LARGE"
	ErrCodeInternal      = "INTERNAL"
	ErrCodeInvalidFormat = "INVALID_FORMAT"
)

// APIError is the JSON body of every failed request
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Cause   error       `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func newAPIError(status int, code, message string, cause error) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Cause: cause}
}

// sanitizeError maps any error to a response without exposing internals
func sanitizeError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var schemaErr *repricer.SchemaError
	var codecErr *codec.CodecError
	var configErr *repricer.ConfigError
	switch {
	case errors.As(err, &schemaErr):
		e := newAPIError(http.StatusUnprocessableEntity, schemaErr.Code(), schemaErr.Reason, err)
		if len(schemaErr.Missing) > 0 {
			e.Details = gin.H{"missing": schemaErr.Missing}
		}
		return e
	case errors.As(err, &codecErr):
		return newAPIError(http.StatusBadRequest, codecErr.Code(), codecErr.Error(), err)
	case errors.As(err, &configErr):
		e := newAPIError(http.StatusBadRequest, configErr.Code(), "rule table is invalid", err)
		e.Details = gin.H{"problems": configErr.Problems}
		return e
	case errors.Is(err, repository.ErrNotFound):
		return newAPIError(http.StatusNotFound, ErrCodeNotFound, "run not found", err)
	default:
		return newAPIError(http.StatusInternalServerError, ErrCodeInternal, "internal server error", err)
	}
}
