package api

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/torchnode/internal/led"
	"github.com/smazurov/torchnode/internal/torch"
)

// torchError maps controller and device errors to HTTP status codes.
func torchError(err error) error {
	var interlock *torch.InterlockError
	switch {
	case errors.As(err, &interlock):
		return huma.Error409Conflict(interlock.Reason.Message(), err)
	case errors.Is(err, torch.ErrNotStrobing):
		return huma.Error409Conflict("Torch is not strobing", err)
	case errors.Is(err, torch.ErrInvalidInterval):
		return huma.Error400BadRequest("Strobe interval must be positive", err)
	case errors.Is(err, led.ErrUnsupported):
		return huma.Error501NotImplemented("Device has no torch LED", err)
	case errors.Is(err, led.ErrUnavailable):
		return huma.Error503ServiceUnavailable("Torch LED is unavailable", err)
	case errors.Is(err, led.ErrCommandFailed):
		return huma.Error502BadGateway("Torch LED stopped responding", err)
	default:
		return huma.Error500InternalServerError("Torch command failed", err)
	}
}
