package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/torchnode/internal/api/models"
	"github.com/smazurov/torchnode/internal/safety"
)

func toSafetyData(st safety.State) models.SafetyData {
	return models.SafetyData{
		PowerLevel:        st.PowerLevel,
		Charging:          st.Charging,
		PowerKnown:        st.PowerKnown,
		ContextActive:     st.ContextActive,
		Tripped:           st.Tripped,
		Reason:            string(st.Reason),
		LowPowerThreshold: st.Policy.LowPowerThreshold,
		MaxOnDuration:     st.Policy.MaxOnDuration.String(),
	}
}

func (s *Server) registerSafetyRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/capabilities",
		Summary:     "Get Capabilities",
		Description: "Report whether this device has a torch LED",
		Tags:        []string{"torch"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CapabilitiesResponse, error) {
		st := s.options.Torch.QueryState()
		return &models.CapabilitiesResponse{
			Body: models.CapabilitiesData{
				Capable:               st.DeviceCapable,
				LED:                   s.options.LEDName,
				DefaultStrobeInterval: s.options.DefaultStrobeInterval.Milliseconds(),
			},
		}, nil
	})

	if s.options.Safety == nil {
		s.logger.Debug("Safety monitor not available, skipping safety routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-safety",
		Method:      http.MethodGet,
		Path:        "/api/safety",
		Summary:     "Get Safety State",
		Description: "Get the interlock inputs, policy and verdict",
		Tags:        []string{"safety"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.SafetyResponse, error) {
		return &models.SafetyResponse{Body: toSafetyData(s.options.Safety.Snapshot())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-context",
		Method:      http.MethodPost,
		Path:        "/api/context",
		Summary:     "Set Torch Context",
		Description: "Mark the hosting context active or inactive. Deactivating turns the torch off and releases the LED.",
		Tags:        []string{"safety"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *models.ContextRequest) (*models.SafetyResponse, error) {
		source := input.Body.Source
		if source == "" {
			source = "api"
		}
		if input.Body.Active {
			s.options.Safety.OnContextActivated(source)
		} else {
			s.options.Safety.OnContextDeactivated(source)
		}
		return &models.SafetyResponse{Body: toSafetyData(s.options.Safety.Snapshot())}, nil
	})
}
