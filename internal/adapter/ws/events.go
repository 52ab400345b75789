package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/komodo-run/core/internal/domain/resource"
)

// Event type constants for the "UPDATE"/"ALERT" messages broadcast over
// /ws/update. Services call BroadcastEvent directly with
// these; the Hub itself is agnostic to the payload shape beyond needing a
// "target" field for the permission filter.
const (
	EventUpdate = "UPDATE"
	EventAlert  = "ALERT"
)

// targetedPayload is the minimal shape every broadcast payload carries:
// both update.Update and alert.Alert marshal a "target" field, which is
// all the per-subscriber permission filter needs.
type targetedPayload struct {
	Target resource.TargetRef `json:"target"`
}

// BroadcastEvent marshals payload and publishes it to every logged-in
// subscriber whose effective permission on payload's target is at least
// Read (admins always see it). Never blocks the caller: delivery to each
// subscriber happens on that subscriber's own bounded, drop-oldest queue.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	var tp targetedPayload
	if err := json.Unmarshal(data, &tp); err != nil {
		slog.Warn("ws event payload has no target field", "type", eventType, "error", err)
	}

	h.broadcast(ctx, Message{Type: eventType, Payload: json.RawMessage(data)}, tp.Target)
}
