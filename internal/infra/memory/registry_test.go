package memory

import (
	"testing"

	"github.com/jonboulle/clockwork"

	"tournament-service/internal/app"
)

func TestRegistryLifecycle(t *testing.T) {
	registry := NewRegistry()

	session := app.NewSession("ABCD", nil, app.SessionOptions{}, clockwork.NewRealClock())
	registry.Put(session)

	got, ok := registry.Get("ABCD")
	if !ok || got != session {
		t.Fatalf("expected stored session back")
	}

	registry.Remove("ABCD")
	if _, ok := registry.Get("ABCD"); ok {
		t.Fatalf("expected session removed")
	}
}
