package notify

import (
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
)

// WebSocketPublisher is the plugin API call used to reach a user's clients.
type WebSocketPublisher interface {
	PublishWebSocketEvent(event string, payload map[string]any, broadcast *model.WebsocketBroadcast)
}

// WebSocketSink publishes events addressed to a user on the Mattermost websocket. Every
// open client of the user receives them.
type WebSocketSink struct {
	publisher WebSocketPublisher
}

// NewWebSocketSink creates a websocket sink.
func NewWebSocketSink(publisher WebSocketPublisher) *WebSocketSink {
	return &WebSocketSink{publisher: publisher}
}

type wireEvent struct {
	Alert          any    `json:"alert,omitempty"`
	Report         any    `json:"report,omitempty"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Message        string `json:"message,omitempty"`
	Data           any    `json:"data,omitempty"`
}

// Send publishes the event. Events without a target user are ignored.
func (s *WebSocketSink) Send(event Event) error {
	if event.UserID == "" {
		return nil
	}

	wire := wireEvent{
		PreviousStatus: string(event.PreviousStatus),
		Message:        event.Message,
		Data:           event.Data,
	}
	if event.Alert != nil {
		wire.Alert = event.Alert
	}
	if event.Report != nil {
		wire.Report = event.Report
	}

	// The payload crosses the plugin RPC boundary, so structured data travels as JSON text.
	data, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Kind, err)
	}

	s.publisher.PublishWebSocketEvent(string(event.Kind), map[string]any{
		"session_id": event.SessionID,
		"payload":    string(data),
	}, &model.WebsocketBroadcast{UserId: event.UserID})
	return nil
}
