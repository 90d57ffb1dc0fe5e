package jobs

import (
	"errors"
	"testing"
)

func TestDecode_DefaultsToProcess(t *testing.T) {
	m, err := Decode([]byte(`{"version":1,"reference":" 9872023VH5797S0001WI ","requested_at":"2024-05-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Kind != KindProcess || m.Reference != "9872023VH5797S0001WI" {
		t.Fatalf("unexpected message %+v", m)
	}
}

func TestDecode_Rejects(t *testing.T) {
	cases := map[string]string{
		"bad json":       `{"version":`,
		"version":        `{"version":2,"reference":"X","requested_at":"2024-05-01T10:00:00Z"}`,
		"no reference":   `{"version":1,"requested_at":"2024-05-01T10:00:00Z"}`,
		"no timestamp":   `{"version":1,"reference":"X"}`,
		"unknown kind":   `{"version":1,"kind":"purge","reference":"X","requested_at":"2024-05-01T10:00:00Z"}`,
		"layer required": `{"version":1,"kind":"invalidate_layer","requested_at":"2024-05-01T10:00:00Z"}`,
	}
	for name, in := range cases {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrInvalidMessage) {
			t.Fatalf("%s: want ErrInvalidMessage, got %v", name, err)
		}
	}
}

func TestDecode_InvalidateLayer(t *testing.T) {
	m, err := Decode([]byte(`{"version":1,"kind":"invalidate_layer","layer":"dph","requested_at":"2024-05-01T10:00:00Z"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Layer != "dph" || m.Reference != "" {
		t.Fatalf("unexpected message %+v", m)
	}
}
