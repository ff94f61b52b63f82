package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/market-research/internal/artifacts"
	"github.com/jonathan/market-research/internal/pipeline"
	"github.com/jonathan/market-research/internal/rendering"
	"github.com/jonathan/market-research/internal/store"
	"github.com/jonathan/market-research/internal/types"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		emailErr *ErrEmailAlreadyExists
		credErr  *ErrInvalidCredentials
		valErr   *ErrValidation
		invErr   *types.InvariantError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &valErr), errors.Is(err, artifacts.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.As(err, &emailErr), errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound), errors.Is(err, artifacts.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, rendering.ErrNotCompleted):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotPending),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrAlreadyRunning),
		errors.As(err, &invErr):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrPoolFull), errors.Is(err, pipeline.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage hides internal failure details from clients.
func publicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
