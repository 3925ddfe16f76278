package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abhaydixit07/codehive-server/internal/models"
)

// frameCapture records everything sent to one client. Guarded by a mutex so
// tests can drive joins and leaves from multiple goroutines.
type frameCapture struct {
	mu     sync.Mutex
	frames []models.Frame
}

func newFrameCapture() *frameCapture { return &frameCapture{} }

func (c *frameCapture) hook(frame models.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frame)
}

func (c *frameCapture) list() []models.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *frameCapture) byType(t models.EventType) []models.Frame {
	var out []models.Frame
	for _, f := range c.list() {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}

func hookedClient(id string) (*Client, *frameCapture) {
	c := NewClient(id, nil)
	capture := newFrameCapture()
	c.SetSendHook(capture.hook)
	return c, capture
}

func TestClientSendWithHook(t *testing.T) {
	client, capture := hookedClient("a")

	client.Send(models.NewFrame(models.EventError, models.ErrorInfo{Message: "ping"}))

	got := capture.list()
	if len(got) != 1 || got[0].Type != models.EventError {
		t.Fatalf("expected frame captured, got %#v", got)
	}
}

func TestClientSendWithoutConnDoesNotPanic(t *testing.T) {
	client := NewClient("a", nil)
	client.Send(models.Frame{Type: models.EventError})
}

func TestClientSendWritesToConn(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan models.Frame, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err == nil {
			received <- frame
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()

	client := NewClient("a", conn)
	client.Send(models.NewFrame(models.EventRoomCreated, models.RoomCreated{RoomID: "r"}))

	select {
	case frame := <-received:
		if frame.Type != models.EventRoomCreated {
			t.Fatalf("unexpected frame: %#v", frame)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected frame to be received")
	}
}

func TestRoomAddRemoveParticipants(t *testing.T) {
	room := NewRoom("room")
	if count := room.ParticipantCount(); count != 0 {
		t.Fatalf("expected empty room, got %d", count)
	}

	a, _ := hookedClient("a")
	b, _ := hookedClient("b")
	room.AddParticipant(a, "Alice")
	room.AddParticipant(b, "Bob")
	if count := room.ParticipantCount(); count != 2 {
		t.Fatalf("expected 2 participants, got %d", count)
	}

	if !room.Has("a") || !room.Has("b") {
		t.Fatalf("expected both participants present")
	}
	if name, ok := room.DisplayName("a"); !ok || name != "Alice" {
		t.Fatalf("unexpected display name %q ok=%v", name, ok)
	}

	if left, removed := room.RemoveParticipant("a"); !removed || left != 1 {
		t.Fatalf("expected 1 participant after remove, got %d removed=%v", left, removed)
	}
	if left, removed := room.RemoveParticipant("a"); removed || left != 1 {
		t.Fatalf("second remove should be a no-op, got %d removed=%v", left, removed)
	}
	if left, removed := room.RemoveParticipant("b"); !removed || left != 0 {
		t.Fatalf("expected empty room, got %d removed=%v", left, removed)
	}
}

func TestRoomRefusesJoinAfterDraining(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	if _, ok := room.AddParticipant(a, "Alice"); !ok {
		t.Fatalf("expected join into fresh room to succeed")
	}
	room.RemoveParticipant("a")

	b, _ := hookedClient("b")
	if _, ok := room.AddParticipant(b, "Bob"); ok {
		t.Fatalf("drained room must refuse new members")
	}
}

func TestRoomAddParticipantCapturesExistingPeers(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	b, _ := hookedClient("b")

	first, ok := room.AddParticipant(a, "Alice")
	if !ok || len(first.Existing) != 0 {
		t.Fatalf("first joiner should see no existing peers: %#v", first.Existing)
	}
	if _, ok := first.Participants["a"]; !ok {
		t.Fatalf("joiner missing from own snapshot")
	}

	second, ok := room.AddParticipant(b, "Bob")
	if !ok {
		t.Fatalf("expected second join to succeed")
	}
	if len(second.Existing) != 1 || second.Existing["a"].DisplayName != "Alice" {
		t.Fatalf("second joiner should see exactly the first peer: %#v", second.Existing)
	}
	if len(second.Participants) != 2 {
		t.Fatalf("snapshot should include both members: %#v", second.Participants)
	}
}

func TestRoomDefaultsAtJoin(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	room.AddParticipant(a, "Alice")

	_, participants := room.Snapshot()
	p, ok := participants["a"]
	if !ok {
		t.Fatalf("joiner missing from own snapshot")
	}
	if !p.VideoEnabled || !p.AudioEnabled {
		t.Fatalf("presence flags should default to enabled: %#v", p)
	}
	if p.CursorPosition != nil {
		t.Fatalf("cursor should be null until first reported: %#v", p)
	}
}

func TestRoomHostIsFirstJoiner(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	b, _ := hookedClient("b")
	room.AddParticipant(a, "Alice")
	room.AddParticipant(b, "Bob")

	status := room.Status()
	if status.HostID != "a" {
		t.Fatalf("expected first joiner as host, got %q", status.HostID)
	}
	if status.ParticipantCount != 2 {
		t.Fatalf("expected 2 participants in status, got %d", status.ParticipantCount)
	}
}

func TestRoomApplyEditLastWriterWins(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	b, _ := hookedClient("b")
	room.AddParticipant(a, "Alice")
	room.AddParticipant(b, "Bob")

	if !room.ApplyEdit("a", "first", &models.CursorPosition{LineNumber: 1, Column: 2}) {
		t.Fatalf("expected edit from member to apply")
	}
	if !room.ApplyEdit("b", "second", nil) {
		t.Fatalf("expected edit from member to apply")
	}

	code, participants := room.Snapshot()
	if code != "second" {
		t.Fatalf("expected last writer to win, got %q", code)
	}
	if cur := participants["a"].CursorPosition; cur == nil || cur.LineNumber != 1 || cur.Column != 2 {
		t.Fatalf("sender cursor not recorded: %#v", cur)
	}
}

func TestRoomApplyEditFromStaleParticipantIgnored(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	room.AddParticipant(a, "Alice")
	room.ApplyEdit("a", "kept", nil)
	room.RemoveParticipant("a")

	if room.ApplyEdit("a", "dropped", nil) {
		t.Fatalf("edit from removed participant should be ignored")
	}
	if code, _ := room.Snapshot(); code != "kept" {
		t.Fatalf("stale edit mutated the document: %q", code)
	}
}

func TestRoomMoveCursorDoesNotTouchDocument(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	room.AddParticipant(a, "Alice")
	room.ApplyEdit("a", "text", nil)

	if !room.MoveCursor("a", &models.CursorPosition{LineNumber: 3, Column: 7}) {
		t.Fatalf("expected cursor move to apply")
	}

	code, participants := room.Snapshot()
	if code != "text" {
		t.Fatalf("cursor move mutated the document: %q", code)
	}
	if cur := participants["a"].CursorPosition; cur == nil || cur.LineNumber != 3 {
		t.Fatalf("cursor not updated: %#v", cur)
	}
}

func TestRoomToggleUpdatesOnlyTargetedFlag(t *testing.T) {
	room := NewRoom("room")
	a, _ := hookedClient("a")
	room.AddParticipant(a, "Alice")
	room.ApplyEdit("a", "text", &models.CursorPosition{LineNumber: 1, Column: 1})

	if !room.SetVideoEnabled("a", false) {
		t.Fatalf("expected video toggle to apply")
	}

	code, participants := room.Snapshot()
	p := participants["a"]
	if p.VideoEnabled {
		t.Fatalf("video flag not updated")
	}
	if !p.AudioEnabled {
		t.Fatalf("audio flag must be untouched by video toggle")
	}
	if p.CursorPosition == nil || code != "text" {
		t.Fatalf("toggle must not touch cursor or document")
	}

	if !room.SetAudioEnabled("a", false) {
		t.Fatalf("expected audio toggle to apply")
	}
	_, participants = room.Snapshot()
	if participants["a"].AudioEnabled {
		t.Fatalf("audio flag not updated")
	}

	if room.SetVideoEnabled("ghost", true) || room.SetAudioEnabled("ghost", true) {
		t.Fatalf("toggle from unknown participant should be ignored")
	}
}

func TestRoomBroadcastExcludesSender(t *testing.T) {
	room := NewRoom("room")
	a, capA := hookedClient("a")
	b, capB := hookedClient("b")
	sender := NewClient("s", nil)
	sender.SetSendHook(func(f models.Frame) {
		t.Errorf("sender should not receive broadcast: %#v", f)
	})
	room.AddParticipant(a, "Alice")
	room.AddParticipant(b, "Bob")
	room.AddParticipant(sender, "Sam")

	frame := models.NewFrame(models.EventReceiveCodeChange, models.ReceiveCodeChange{Code: "x", SenderID: "s"})
	room.Broadcast("s", frame)

	if got := capA.list(); len(got) != 1 || got[0].Type != models.EventReceiveCodeChange {
		t.Fatalf("client a missing frame: %#v", got)
	}
	if got := capB.list(); len(got) != 1 || got[0].Type != models.EventReceiveCodeChange {
		t.Fatalf("client b missing frame: %#v", got)
	}
}

func TestRoomSendToUnknownTarget(t *testing.T) {
	room := NewRoom("room")
	a, capA := hookedClient("a")
	room.AddParticipant(a, "Alice")

	err := room.SendTo("ghost", models.Frame{Type: models.EventIncomingSignal})
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(capA.list()) != 0 {
		t.Fatalf("point-to-point send leaked to other participants")
	}
}
