// Package events carries alert messages from detection sources to
// subscribers such as the alert stream and the application state.
package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/menta2k/zone-annotator/internal/store"
)

// ErrMalformed is returned for messages that fail schema validation.
var ErrMalformed = errors.New("malformed event message")

// Message is an alert event on the wire.
type Message struct {
	Type store.AlertType `json:"type"`
	Data AlertData       `json:"data"`
}

// AlertData is the payload of every alert message type.
type AlertData struct {
	CameraID    string         `json:"cameraId"`
	CameraName  string         `json:"cameraName"`
	ZoneID      string         `json:"zoneId"`
	ZoneName    string         `json:"zoneName"`
	Count       *int           `json:"count,omitempty"`
	Severity    store.Severity `json:"severity"`
	SnapshotURL string         `json:"snapshotUrl"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Validate checks the message against its type's schema.
func (m Message) Validate() error {
	switch m.Type {
	case store.AlertCrowd:
		if m.Data.Count == nil {
			return fmt.Errorf("%w: crowd_detection requires count", ErrMalformed)
		}
	case store.AlertIntrusion:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformed, m.Type)
	}
	d := m.Data
	if strings.TrimSpace(d.CameraID) == "" {
		return fmt.Errorf("%w: cameraId is required", ErrMalformed)
	}
	if strings.TrimSpace(d.ZoneID) == "" {
		return fmt.Errorf("%w: zoneId is required", ErrMalformed)
	}
	if !d.Severity.Valid() {
		return fmt.Errorf("%w: severity %q", ErrMalformed, d.Severity)
	}
	if d.Count != nil && *d.Count < 0 {
		return fmt.Errorf("%w: count cannot be negative", ErrMalformed)
	}
	if d.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrMalformed)
	}
	return nil
}

// DecodeMessage parses and validates a message. Unknown fields are rejected.
func DecodeMessage(data []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var m Message
	if err := dec.Decode(&m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// AlertInput converts the message for the application state.
func (m Message) AlertInput() store.AlertInput {
	return store.AlertInput{
		Type:        m.Type,
		CameraID:    m.Data.CameraID,
		CameraName:  m.Data.CameraName,
		ZoneID:      m.Data.ZoneID,
		ZoneName:    m.Data.ZoneName,
		Count:       m.Data.Count,
		Severity:    m.Data.Severity,
		Timestamp:   m.Data.Timestamp,
		SnapshotURL: m.Data.SnapshotURL,
	}
}
