package websocket

import (
	"testing"
	"time"

	"liveclass/pkg/types"
)

func TestBroadcastReachesWholeRoom(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	teacher, teacherClient := newMemberConn(t, "teacher-1", types.RoleTeacher, "sess-1")
	student, studentClient := newMemberConn(t, "student-1", types.RoleStudent, "sess-1")
	stranger, strangerClient := newMemberConn(t, "student-9", types.RoleStudent, "sess-2")

	for _, conn := range []*Connection{teacher, student, stranger} {
		if err := r.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	b.Broadcast("sess-1", types.NewErrorEvent("sess-1", types.ErrCodeInvalidMessage, "test"))

	if got := readFrame(t, teacherClient); got["session_id"] != "sess-1" {
		t.Errorf("teacher frame: %v", got)
	}
	if got := readFrame(t, studentClient); got["session_id"] != "sess-1" {
		t.Errorf("student frame: %v", got)
	}

	// The other room must stay silent.
	_ = strangerClient.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := strangerClient.ReadMessage(); err == nil {
		t.Error("other room received the broadcast")
	}
}

func TestBroadcastExceptSkipsSender(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	sender, senderClient := newMemberConn(t, "teacher-1", types.RoleTeacher, "sess-1")
	receiver, receiverClient := newMemberConn(t, "student-1", types.RoleStudent, "sess-1")
	for _, conn := range []*Connection{sender, receiver} {
		if err := r.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	b.BroadcastExcept("sess-1", types.NewErrorEvent("sess-1", "X", "y"), sender)

	if got := readFrame(t, receiverClient); got["session_id"] != "sess-1" {
		t.Errorf("receiver frame: %v", got)
	}
	_ = senderClient.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := senderClient.ReadMessage(); err == nil {
		t.Error("sender received its own broadcast")
	}
}

func TestBroadcastIsolatesDeadPeer(t *testing.T) {
	r := NewRegistry()
	b := NewBroadcaster(r)

	dead, _ := newMemberConn(t, "student-1", types.RoleStudent, "sess-1")
	alive, aliveClient := newMemberConn(t, "student-2", types.RoleStudent, "sess-1")
	for _, conn := range []*Connection{dead, alive} {
		if err := r.Register(conn); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	// Kill one peer's wrapper so writes to it fail immediately.
	_ = dead.Close()

	b.Broadcast("sess-1", types.NewErrorEvent("sess-1", "X", "y"))

	if got := readFrame(t, aliveClient); got["session_id"] != "sess-1" {
		t.Errorf("healthy peer missed the broadcast: %v", got)
	}
	if r.IsUserConnected("sess-1", "student-1") {
		t.Error("dead peer still registered after failed delivery")
	}
}

func TestSendTo(t *testing.T) {
	b := NewBroadcaster(NewRegistry())
	conn, client := newMemberConn(t, "student-1", types.RoleStudent, "sess-1")

	if err := b.SendTo(conn, &types.HeartbeatEvent{Type: types.EventPong, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("SendTo failed: %v", err)
	}
	if got := readFrame(t, client); got["type"] != types.EventPong {
		t.Errorf("frame = %v, want PONG", got)
	}
}
