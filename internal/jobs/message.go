// Package jobs defines the asynchronous work messages accepted by the
// service.
package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Kind string

const (
	KindProcess         Kind = "process"
	KindInvalidateLayer Kind = "invalidate_layer"
)

var ErrInvalidMessage = errors.New("invalid job message")

// Message is one job. Kind defaults to process when omitted.
type Message struct {
	Version     int       `json:"version" validate:"eq=1"`
	Kind        Kind      `json:"kind,omitempty" validate:"oneof=process invalidate_layer"`
	Reference   string    `json:"reference,omitempty" validate:"required_if=Kind process"`
	Layer       string    `json:"layer,omitempty" validate:"required_if=Kind invalidate_layer"`
	RequestedAt time.Time `json:"requested_at" validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a raw message.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: json decode: %w", ErrInvalidMessage, err)
	}
	if m.Kind == "" {
		m.Kind = KindProcess
	}
	m.Reference = strings.TrimSpace(m.Reference)
	m.Layer = strings.TrimSpace(m.Layer)
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) Validate() error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
