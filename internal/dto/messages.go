package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindBookingCreated   = "bookings.created"
	KindOrganiserUpdated = "organisers.updated"
)

// ChangeMessage is published for every record write a trigger listens to.
// Before is empty for creations, After is empty for deletions.
type ChangeMessage struct {
	Kind       string          `json:"kind"`
	ResourceID string          `json:"resource_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewChangeMessage(kind, resourceID string, before, after any) (ChangeMessage, error) {
	msg := ChangeMessage{
		Kind:       kind,
		ResourceID: resourceID,
		OccurredAt: time.Now().UTC(),
	}

	var err error
	if msg.Before, err = snapshot(before); err != nil {
		return ChangeMessage{}, fmt.Errorf("encode before snapshot: %w", err)
	}
	if msg.After, err = snapshot(after); err != nil {
		return ChangeMessage{}, fmt.Errorf("encode after snapshot: %w", err)
	}
	return msg, nil
}

func snapshot(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	return raw, nil
}

// DecodeSnapshot returns nil when the snapshot is absent.
func DecodeSnapshot[T any](raw json.RawMessage) (*T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
