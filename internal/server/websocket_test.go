// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

func TestWSHub_Broadcast(t *testing.T) {
	hub := NewWSHub(quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	// Test broadcast doesn't panic with no clients
	hub.Broadcast("test", map[string]string{"key": "value"})
	hub.BroadcastJob(Job{ID: "test123", Status: JobStatusRunning})

	// Unencodable data is dropped
	hub.Broadcast("bad", make(chan int))
}

func TestWSHub_ClientCount(t *testing.T) {
	hub := NewWSHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	if count := hub.ClientCount(); count != 0 {
		t.Errorf("Expected 0 clients, got %d", count)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func TestWebSocket_InitAndJobUpdates(t *testing.T) {
	srv := newTestServer(t)
	srv.jobs.pull = func(context.Context, hfpull.Source, hfpull.Settings, hfpull.Hooks) (hfpull.Summary, error) {
		return hfpull.Summary{Attempted: 1, Succeeded: 1}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.wsHub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readMessage(t, conn)
	if first.Type != "init" {
		t.Fatalf("Expected init message first, got %s", first.Type)
	}
	if data, _ := first.Data.(map[string]any); data["version"] != "test" {
		t.Errorf("Expected version in init, got %v", first.Data)
	}
	if n := srv.wsHub.ClientCount(); n != 1 {
		t.Errorf("Expected 1 client, got %d", n)
	}

	job, _ := srv.jobs.CreateJob(JobRequest{URL: "https://huggingface.co/ws/test/tree/main"})

	for {
		msg := readMessage(t, conn)
		if msg.Type != "job_update" {
			t.Fatalf("Expected job_update, got %s", msg.Type)
		}
		raw, _ := json.Marshal(msg.Data)
		var got Job
		json.Unmarshal(raw, &got)
		if got.ID != job.ID {
			t.Fatalf("Update for unexpected job %s", got.ID)
		}
		if got.Status == JobStatusCompleted {
			if got.Summary != "download complete, succeeded: 1/1" {
				t.Errorf("Unexpected summary %q", got.Summary)
			}
			break
		}
	}

	// Stopping the hub closes the connection.
	cancel()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	srv := New(Config{AllowedOrigins: []string{"http://ui.local"}, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.wsHub.Run(ctx)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	header := map[string][]string{"Origin": {"http://evil.local"}}
	if _, _, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Error("Expected the upgrade to be refused")
	}
}
