// ABOUTME: Integration tests for the Client API
// ABOUTME: Tests client creation, configuration, and mode availability
package voxline

import (
	"context"
	"sync"
	"testing"
)

func TestNewClientGatewayOnly(t *testing.T) {
	config := Config{
		GatewayAddr: "localhost:9040",
	}

	client, err := New(context.Background(), config)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	// Check defaults were applied
	if client.cfg.Voice == "" {
		t.Error("Expected default voice to be set")
	}
	if client.cfg.SystemInstruction == "" {
		t.Error("Expected default system instruction to be set")
	}

	if client.SessionState() != "idle" {
		t.Errorf("Expected initial state 'idle', got %q", client.SessionState())
	}
	if client.VoiceActive() {
		t.Error("Expected no active voice session initially")
	}

	client.Close()
}

func TestNewClientRequiresKeyOrGateway(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("Expected error with neither api key nor gateway")
	}
}

func TestSendTextWithoutKeySurfacesError(t *testing.T) {
	var mu sync.Mutex
	var errs []string

	client, err := New(context.Background(), Config{
		GatewayAddr: "localhost:9040",
		OnError: func(msg string) {
			mu.Lock()
			errs = append(errs, msg)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.SendText(context.Background(), "hi"); err == nil {
		t.Fatal("Expected error without api key")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || errs[0] == "" {
		t.Errorf("Expected one surfaced error, got %v", errs)
	}
}

func TestStartVoiceWithoutGatewayFails(t *testing.T) {
	client, err := New(context.Background(), Config{APIKey: "test-key"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.StartVoice(context.Background()); err == nil {
		t.Error("Expected error without gateway address")
	}
	if client.SessionState() != "unavailable" {
		t.Errorf("Expected 'unavailable', got %q", client.SessionState())
	}
}

func TestClearHistoryResetsLivePreview(t *testing.T) {
	var mu sync.Mutex
	var previews [][2]string

	client, err := New(context.Background(), Config{
		GatewayAddr: "localhost:9040",
		OnLivePreview: func(in, out string) {
			mu.Lock()
			previews = append(previews, [2]string{in, out})
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	client.ClearHistory()

	mu.Lock()
	defer mu.Unlock()
	if len(previews) == 0 {
		t.Fatal("Expected clear to reset the live preview")
	}
	last := previews[len(previews)-1]
	if last[0] != "" || last[1] != "" {
		t.Errorf("Expected empty preview pair, got %q / %q", last[0], last[1])
	}
}

func TestHistoryChangeCallback(t *testing.T) {
	var mu sync.Mutex
	var snapshots [][]Message

	client, err := New(context.Background(), Config{
		GatewayAddr: "localhost:9040",
		OnHistoryChanged: func(msgs []Message) {
			mu.Lock()
			snapshots = append(snapshots, msgs)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	client.store.Append("user", "hello")
	client.ClearHistory()

	mu.Lock()
	defer mu.Unlock()
	if len(snapshots) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(snapshots))
	}
	if len(snapshots[0]) != 1 || len(snapshots[1]) != 0 {
		t.Errorf("Unexpected snapshot sizes: %d then %d", len(snapshots[0]), len(snapshots[1]))
	}

	if len(client.History()) != 0 {
		t.Error("Expected empty history after clear")
	}
}
