package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dedupe-go/internal/dedup"
)

func TestNewRun(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{name: "with parameters", operation: "Reconcile", parameters: "volume=/vol scope=/vol/in"},
		{name: "empty parameters", operation: "Reconcile", parameters: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRun(tt.operation, tt.parameters)

			if r.Operation != tt.operation {
				t.Errorf("Operation = %q, want %q", r.Operation, tt.operation)
			}
			if r.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", r.Parameters, tt.parameters)
			}
			if r.Status != dedup.RunStatusCompleted {
				t.Errorf("Status = %q, want %q", r.Status, dedup.RunStatusCompleted)
			}
			if r.Persisted() {
				t.Errorf("Persisted() = true for a new run")
			}
		})
	}
}

func TestRun_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil keeps status", err: nil, want: dedup.RunStatusCompleted},
		{name: "error marks failed", err: errors.New("disk full"), want: dedup.RunStatusFailed},
		{name: "cancel marks interrupted", err: context.Canceled, want: dedup.RunStatusInterrupted},
		{name: "wrapped cancel marks interrupted", err: fmt.Errorf("reconciling: %w", context.Canceled), want: dedup.RunStatusInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRun("Reconcile", "")
			r.Fail(tt.err)
			if r.Status != tt.want {
				t.Errorf("Status = %q, want %q", r.Status, tt.want)
			}
		})
	}
}

func TestRun_Persisted(t *testing.T) {
	tests := []struct {
		id   int64
		want bool
	}{
		{id: 0, want: false},
		{id: 1, want: true},
		{id: 99999, want: true},
	}

	for _, tt := range tests {
		r := &Run{ID: tt.id}
		if got := r.Persisted(); got != tt.want {
			t.Errorf("Persisted() with ID %d = %v, want %v", tt.id, got, tt.want)
		}
	}
}
