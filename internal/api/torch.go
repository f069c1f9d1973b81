package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/torchnode/internal/api/models"
	"github.com/smazurov/torchnode/internal/torch"
)

// maxStrobeIntervalMs bounds request intervals well below time.Duration overflow.
const maxStrobeIntervalMs = 60_000

// strobeInterval converts a request interval, rejecting values outside
// 1..maxStrobeIntervalMs before they are scaled.
func strobeInterval(ms int64) (time.Duration, error) {
	if ms < 1 || ms > maxStrobeIntervalMs {
		return 0, huma.Error400BadRequest(fmt.Sprintf("interval_ms must be between 1 and %d", maxStrobeIntervalMs))
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// toStateData converts a controller snapshot for the wire.
func toStateData(st torch.State) models.TorchStateData {
	data := models.TorchStateData{
		Mode:          string(st.Mode.Kind),
		On:            st.Mode.IsOn(),
		DeviceCapable: st.DeviceCapable,
	}
	if data.Mode == "" {
		data.Mode = string(torch.ModeOff)
	}
	if st.Mode.Kind == torch.ModeStrobe {
		data.IntervalMs = st.Mode.Interval.Milliseconds()
	}
	if !st.OnSince.IsZero() {
		data.OnSince = st.OnSince.UTC().Format(time.RFC3339)
	}
	if st.Reason != "" {
		data.Reason = string(st.Reason)
		data.ReasonMessage = st.Reason.Message()
	}
	return data
}

// command runs fn and responds with the resulting state.
func (s *Server) command(fn func() error) (*models.TorchStateResponse, error) {
	if err := fn(); err != nil {
		s.logger.Warn("Torch command rejected", "error", err)
		return nil, torchError(err)
	}
	return &models.TorchStateResponse{Body: toStateData(s.options.Torch.QueryState())}, nil
}

func (s *Server) registerTorchRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-torch",
		Method:      http.MethodGet,
		Path:        "/api/torch",
		Summary:     "Get Torch State",
		Description: "Get the current torch mode, capability and last interlock reason",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.TorchStateResponse, error) {
		return &models.TorchStateResponse{Body: toStateData(s.options.Torch.QueryState())}, nil
	})

	commandErrors := []int{401, 409, 501, 502, 503}

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-on",
		Method:      http.MethodPost,
		Path:        "/api/torch/on",
		Summary:     "Turn Torch On",
		Description: "Hold the torch LED steadily on. From strobe mode the strobe stops and the LED stays lit.",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(_ context.Context, _ *struct{}) (*models.TorchStateResponse, error) {
		return s.command(s.options.Torch.TurnOn)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-off",
		Method:      http.MethodPost,
		Path:        "/api/torch/off",
		Summary:     "Turn Torch Off",
		Description: "Turn the torch off and release the LED. Turning off while off does nothing.",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(_ context.Context, _ *struct{}) (*models.TorchStateResponse, error) {
		return s.command(s.options.Torch.TurnOff)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-toggle",
		Method:      http.MethodPost,
		Path:        "/api/torch/toggle",
		Summary:     "Toggle Torch",
		Description: "Turn the torch on when off, otherwise off",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(_ context.Context, _ *struct{}) (*models.TorchStateResponse, error) {
		return s.command(s.options.Torch.Toggle)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-hold",
		Method:      http.MethodPost,
		Path:        "/api/torch/hold",
		Summary:     "Momentary Torch",
		Description: "Turn the torch on while a button is pressed and off when it is released",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      commandErrors,
	}, func(_ context.Context, input *models.HoldRequest) (*models.TorchStateResponse, error) {
		if input.Body.Pressed {
			return s.command(s.options.Torch.TurnOn)
		}
		return s.command(s.options.Torch.TurnOff)
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-strobe",
		Method:      http.MethodPost,
		Path:        "/api/torch/strobe",
		Summary:     "Start Strobe",
		Description: "Blink the torch at a fixed interval. While already strobing only the interval changes.",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      append([]int{400}, commandErrors...),
	}, func(_ context.Context, input *models.StrobeRequest) (*models.TorchStateResponse, error) {
		interval := s.options.DefaultStrobeInterval
		if input.Body.IntervalMs != nil {
			var err error
			if interval, err = strobeInterval(*input.Body.IntervalMs); err != nil {
				return nil, err
			}
		}
		return s.command(func() error {
			return s.options.Torch.StartStrobe(interval)
		})
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "torch-strobe-interval",
		Method:      http.MethodPut,
		Path:        "/api/torch/strobe/interval",
		Summary:     "Set Strobe Interval",
		Description: "Change the strobe interval from the next scheduled edge",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      append([]int{400}, commandErrors...),
	}, func(_ context.Context, input *models.StrobeIntervalRequest) (*models.TorchStateResponse, error) {
		interval, err := strobeInterval(input.Body.IntervalMs)
		if err != nil {
			return nil, err
		}
		return s.command(func() error {
			return s.options.Torch.SetStrobeInterval(interval)
		})
	})
}
