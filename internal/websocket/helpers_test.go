package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// newSocketPair dials a throwaway httptest server and returns both ends of a
// real websocket, so wrapper behavior is tested over the actual protocol.
func newSocketPair(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverCh := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverCh <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	server := <-serverCh
	t.Cleanup(func() { _ = server.Close() })
	return server, client
}

// newMemberConn wraps the server side of a fresh socket pair with a bound
// identity, ready for registration.
func newMemberConn(t *testing.T, userID, role, sessionID string) (*Connection, *websocket.Conn) {
	t.Helper()

	server, client := newSocketPair(t)
	conn := NewConnection(server, 16)
	t.Cleanup(func() { _ = conn.Close() })
	conn.SetIdentity(userID, role, sessionID)
	return conn, client
}
