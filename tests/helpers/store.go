// Package helpers provides shared test fixtures.
package helpers

import (
	"context"
	"testing"

	"github.com/ankitsolutions/chatdesk/backend"
)

// NewTestBackendStore returns a seeded in-memory backend store that is
// closed when the test ends.
func NewTestBackendStore(t *testing.T) *backend.Store {
	t.Helper()

	s, err := backend.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create backend store: %v", err)
	}
	if err := s.Seed(context.Background()); err != nil {
		t.Fatalf("failed to seed backend store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
