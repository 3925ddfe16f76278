package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhaydixit07/codehive-server/internal/metrics"
	"github.com/abhaydixit07/codehive-server/internal/models"
)

// ErrRoomNotFound is the normal, expected outcome of a lookup against a stale
// or mistyped room id.
var ErrRoomNotFound = errors.New("room not found")

// Registry owns the room table for one server instance. It is created in main
// and passed into every handler; its lifetime is the server's lifetime.
type Registry struct {
	log *zap.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		log:   log,
		rooms: make(map[string]*Room),
	}
}

// CreateRoom inserts an empty room under a fresh unguessable id and returns
// the id. The creator is expected to join immediately after.
func (reg *Registry) CreateRoom() string {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id := uuid.New().String()
	for {
		if _, exists := reg.rooms[id]; !exists {
			break
		}
		id = uuid.New().String()
	}
	reg.rooms[id] = NewRoom(id)
	metrics.RoomCreated()
	reg.log.Info("room created", zap.String("roomId", id))
	return id
}

func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// Delete removes a room; calling it on a missing id is a no-op.
func (reg *Registry) Delete(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.rooms[id]; !ok {
		return
	}
	delete(reg.rooms, id)
	metrics.RoomClosed()
	reg.log.Info("room deleted", zap.String("roomId", id))
}

// FindRoomByParticipant locates the single room containing the participant.
// A participant belongs to at most one room, so the first hit is the answer.
func (reg *Registry) FindRoomByParticipant(participantID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	for _, room := range reg.rooms {
		if room.Has(participantID) {
			return room, true
		}
	}
	return nil, false
}

func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Join adds the client to the room, delivers the starting snapshot to the
// joiner, notifies the rest of the room, and runs the peer introduction so
// every existing participant and the newcomer discover each other once in
// each direction.
func (reg *Registry) Join(roomID string, c *Client, displayName string) error {
	room, ok := reg.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}

	// AddParticipant captures the pre-insertion peer list and the snapshot in
	// one critical section, so two concurrent joins serialize and each ordered
	// pair is introduced exactly once. A room that drained and closed between
	// the lookup and the insert refuses the newcomer; to the joiner that is
	// the same as the room never existing.
	state, ok := room.AddParticipant(c, displayName)
	if !ok {
		return ErrRoomNotFound
	}
	metrics.ParticipantJoined()

	c.Send(models.NewFrame(models.EventInitialRoomData, models.InitialRoomData{
		RoomID:       roomID,
		Code:         state.Code,
		Participants: state.Participants,
	}))

	room.Broadcast(c.ID, models.NewFrame(models.EventUserJoined, models.UserJoined{
		Participant:  state.Participants[c.ID],
		Participants: state.Participants,
	}))

	// Existing members are the offer initiators of the introduction protocol.
	for peerID, peer := range state.Existing {
		_ = room.SendTo(peerID, models.NewFrame(models.EventPeerJoined, models.PeerJoined{
			PeerID:   c.ID,
			PeerName: displayName,
		}))
		c.Send(models.NewFrame(models.EventPeerAvailable, models.PeerAvailable{
			PeerID:   peerID,
			PeerName: peer.DisplayName,
		}))
	}

	reg.log.Info("participant joined",
		zap.String("roomId", roomID),
		zap.String("userId", c.ID),
		zap.String("displayName", displayName))
	return nil
}

// Leave removes the participant, deleting the room when it empties and
// notifying the remainder otherwise. Leaving twice, or leaving a room or
// participant that no longer exists, is a no-op.
func (reg *Registry) Leave(roomID, participantID string) {
	room, ok := reg.Get(roomID)
	if !ok {
		return
	}

	remaining, removed := room.RemoveParticipant(participantID)
	if !removed {
		return
	}
	metrics.ParticipantLeft()
	reg.log.Info("participant left",
		zap.String("roomId", roomID),
		zap.String("userId", participantID))

	if remaining == 0 {
		reg.Delete(roomID)
		return
	}

	_, participants := room.Snapshot()
	room.BroadcastAll(models.NewFrame(models.EventUserLeft, models.UserLeft{
		UserID:       participantID,
		Participants: participants,
	}))
}

// BroadcastAll fans a frame out to every connection in every room on this
// instance. Chat is deliberately global, not room-scoped.
func (reg *Registry) BroadcastAll(frame models.Frame) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.Unlock()

	for _, room := range rooms {
		room.BroadcastAll(frame)
	}
}

// Shutdown tells every connection the server is going away and closes them.
func (reg *Registry) Shutdown() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.rooms = make(map[string]*Room)
	reg.mu.Unlock()

	frame := models.NewFrame(models.EventServerShutdown, models.ServerShutdown{
		Message: "Server is shutting down. Please reconnect.",
	})
	for _, room := range rooms {
		room.BroadcastAll(frame)
		for _, c := range room.clients() {
			c.Close()
		}
	}
	reg.log.Info("registry shut down", zap.Int("rooms", len(rooms)))
}
