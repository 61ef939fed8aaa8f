package domain

type Bug struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	UserID      *int64 `json:"userId,omitempty"`
	Resolved    bool   `json:"resolved"`
}

type Project struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type" enum:"bug.created,bug.updated"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	Payload    string `json:"payload_json"`
}
