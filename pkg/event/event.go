// Package event defines the records pulled from the events API and the
// normalization of their timestamps.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingID is returned when an event object has no id.
var ErrMissingID = errors.New("event has no id")

// Event is a single record from the events API. Raw keeps the original object so the
// store can persist fields the typed view does not know about.
type Event struct {
	ID        string
	Type      string
	SessionID string
	UserID    string
	Name      string
	Timestamp Timestamp
	Raw       json.RawMessage
}

// wireEvent accepts both camelCase and snake_case spellings seen in the API.
type wireEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"sessionId"`
	SessionID2 string    `json:"session_id"`
	UserID     string    `json:"userId"`
	UserID2    string    `json:"user_id"`
	Name       string    `json:"name"`
	Timestamp  Timestamp `json:"timestamp"`
	Session    *struct {
		ID string `json:"id"`
	} `json:"session"`
}

// UnmarshalJSON decodes an API event and keeps the raw object.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if w.ID == "" {
		return ErrMissingID
	}

	*e = Event{
		ID:        w.ID,
		Type:      w.Type,
		SessionID: firstNonEmpty(w.SessionID, w.SessionID2),
		UserID:    firstNonEmpty(w.UserID, w.UserID2),
		Name:      w.Name,
		Timestamp: w.Timestamp,
		Raw:       append(json.RawMessage(nil), data...),
	}
	if e.SessionID == "" && w.Session != nil {
		e.SessionID = w.Session.ID
	}
	return nil
}

// MarshalJSON writes the raw object back out unchanged.
func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	return json.Marshal(map[string]any{
		"id":        e.ID,
		"type":      e.Type,
		"sessionId": e.SessionID,
		"userId":    e.UserID,
		"name":      e.Name,
		"timestamp": e.Timestamp,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
