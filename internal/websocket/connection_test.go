package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"liveclass/pkg/types"
)

func readFrame(t *testing.T, client *websocket.Conn) map[string]any {
	t.Helper()
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("client received invalid JSON %q: %v", data, err)
	}
	return decoded
}

func TestWriteJSONDeliversFrame(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, 16)
	defer func() { _ = conn.Close() }()

	event := types.NewErrorEvent("sess-1", types.ErrCodeInvalidMessage, "bad frame")
	if err := conn.WriteJSON(event); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	got := readFrame(t, client)
	if got["type"] != types.EventError || got["error_code"] != types.ErrCodeInvalidMessage {
		t.Errorf("unexpected frame: %v", got)
	}
}

func TestWriteJSONAfterClose(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 16)

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.WriteJSON("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("error = %v, want %v", err, ErrConnectionClosed)
	}
}

// Exercises WriteJSON from many goroutines racing Close. Run with -race;
// the writer must fail with ErrConnectionClosed, never panic.
func TestConcurrentWritersDuringClose(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 4)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 50; j++ {
				if err := conn.WriteJSON("frame"); errors.Is(err, ErrConnectionClosed) {
					return
				}
			}
		}()
	}

	close(start)
	time.Sleep(time.Millisecond)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	wg.Wait()

	if err := conn.WriteJSON("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("post-close error = %v, want %v", err, ErrConnectionClosed)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 16)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCloseWithCodeReachesClient(t *testing.T) {
	server, client := newSocketPair(t)
	conn := NewConnection(server, 16)

	if err := conn.CloseWithCode(types.CloseForbidden, "not your class"); err != nil {
		t.Fatalf("CloseWithCode failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != types.CloseForbidden {
		t.Errorf("close code = %d, want %d", closeErr.Code, types.CloseForbidden)
	}
	if closeErr.Text != "not your class" {
		t.Errorf("close reason = %q, want %q", closeErr.Text, "not your class")
	}
}

func TestIdentityAccessors(t *testing.T) {
	server, _ := newSocketPair(t)
	conn := NewConnection(server, 16)
	defer func() { _ = conn.Close() }()

	if conn.HasIdentity() {
		t.Error("fresh connection claims an identity")
	}

	conn.SetIdentity("student-1", types.RoleStudent, "sess-1")
	if !conn.HasIdentity() {
		t.Error("identity not bound")
	}
	if conn.UserID() != "student-1" || conn.Role() != types.RoleStudent || conn.SessionID() != "sess-1" {
		t.Errorf("accessors = (%s, %s, %s)", conn.UserID(), conn.Role(), conn.SessionID())
	}
}
