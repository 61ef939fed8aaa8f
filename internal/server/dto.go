package server

import (
	"encoding/json"

	"bugline/internal/domain"
)

// Request payloads

type CreateBugRequest struct {
	Description string `json:"description" minLength:"1" example:"bug 5"`
	UserID      *int64 `json:"userId,omitempty"`
}

type UpdateBugRequest struct {
	Resolved *bool  `json:"resolved,omitempty"`
	UserID   *int64 `json:"userId,omitempty"`
}

// Response payloads

type BugResponse struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	UserID      *int64 `json:"userId,omitempty"`
	Resolved    bool   `json:"resolved"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	Payload    map[string]any `json:"payload"`
}

type eventList struct {
	Items []EventResponse `json:"items"`
}

// Conversion helpers

func bugResponse(b domain.Bug) BugResponse {
	return BugResponse(b)
}

func mapBugs(items []domain.Bug) []BugResponse {
	out := make([]BugResponse, 0, len(items))
	for _, b := range items {
		out = append(out, bugResponse(b))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}
