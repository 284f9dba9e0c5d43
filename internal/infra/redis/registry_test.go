package redis

import (
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"

	"tournament-service/internal/app"
)

func TestRegistrySetsAndClearsLivenessKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	registry := NewRegistry(client, time.Minute)

	session := app.NewSession("ABCD", nil, app.SessionOptions{}, clockwork.NewRealClock())
	registry.Put(session)
	if !mr.Exists("tournament:session:ABCD") {
		t.Fatalf("expected redis liveness key to be set")
	}
	if got, ok := registry.Get("ABCD"); !ok || got != session {
		t.Fatalf("expected session from local map")
	}

	registry.Remove("ABCD")
	if mr.Exists("tournament:session:ABCD") {
		t.Fatalf("expected redis liveness key to be removed")
	}
	if _, ok := registry.Get("ABCD"); ok {
		t.Fatalf("expected session removed")
	}
}
