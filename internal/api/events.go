package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/torchnode/internal/events"
	"github.com/smazurov/torchnode/internal/torch"
)

// currentModeEvent renders the controller's present mode as the event a new
// client would have seen when it was entered.
func currentModeEvent(st torch.State) events.ModeChangedEvent {
	data := toStateData(st)
	return events.ModeChangedEvent{
		Mode:       data.Mode,
		IntervalMs: data.IntervalMs,
		Timestamp:  time.Now().Format(time.RFC3339),
	}
}

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time torch events: mode changes, interlock trips, device errors, power and context changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, map[string]any{
		"mode-changed":       events.ModeChangedEvent{},
		"interlock-tripped":  events.InterlockTrippedEvent{},
		"device-error":       events.DeviceErrorEvent{},
		"power-changed":      events.PowerChangedEvent{},
		"context-changed":    events.ContextChangedEvent{},
		"capability-changed": events.CapabilityChangedEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ModeChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.InterlockTrippedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.DeviceErrorEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.PowerChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ContextChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.CapabilityChangedEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Initial snapshot so clients need not poll /api/torch on connect
		if err := send.Data(currentModeEvent(s.options.Torch.QueryState())); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
