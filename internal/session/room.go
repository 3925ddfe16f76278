package session

import (
	"errors"
	"sync"
	"time"

	"github.com/abhaydixit07/codehive-server/internal/models"
)

// ErrNotConnected is returned by SendTo when the target participant is not in
// the room. Callers treat it as a silent drop, not a failure.
var ErrNotConnected = errors.New("participant not connected")

// Participant is one member of a room. Flags default to enabled at join and
// the cursor stays nil until first reported.
type Participant struct {
	ID             string
	DisplayName    string
	VideoEnabled   bool
	AudioEnabled   bool
	CursorPosition *models.CursorPosition

	client *Client
}

func (p *Participant) info() models.ParticipantInfo {
	return models.ParticipantInfo{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		VideoEnabled:   p.VideoEnabled,
		AudioEnabled:   p.AudioEnabled,
		CursorPosition: p.CursorPosition,
	}
}

// Room holds the authoritative shared document and the participants editing
// it. All state behind one mutex; handlers never hold it across a send to
// more than the snapshot they took.
type Room struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	hostID       string
	document     string
	closed       bool
	participants map[string]*Participant
}

func NewRoom(id string) *Room {
	return &Room{
		ID:           id,
		CreatedAt:    time.Now(),
		participants: make(map[string]*Participant),
	}
}

// JoinState is the room state the membership notifications need, captured
// atomically at insertion time: the peer list as it stood before the insert
// and the snapshot including the newcomer. Capturing both under one lock is
// what keeps the peer introduction exact when two participants join at once.
type JoinState struct {
	Code         string
	Existing     map[string]models.ParticipantInfo
	Participants map[string]models.ParticipantInfo
}

// AddParticipant inserts a new member with default presence flags. The first
// participant to join becomes the recorded host; nothing is gated on it.
// Insertion is refused once the room has drained and closed.
func (r *Room) AddParticipant(c *Client, displayName string) (JoinState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return JoinState{}, false
	}
	existing := r.infosLocked()
	p := &Participant{
		ID:           c.ID,
		DisplayName:  displayName,
		VideoEnabled: true,
		AudioEnabled: true,
		client:       c,
	}
	if r.hostID == "" {
		r.hostID = c.ID
	}
	r.participants[c.ID] = p
	return JoinState{
		Code:         r.document,
		Existing:     existing,
		Participants: r.infosLocked(),
	}, true
}

// RemoveParticipant deletes the member and reports how many remain and
// whether anything was removed. Removing an absent participant is a no-op.
// A room that drains to zero closes for good; a join racing the last leave
// finds it closed and must go through a fresh room.
func (r *Room) RemoveParticipant(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return len(r.participants), false
	}
	delete(r.participants, id)
	if len(r.participants) == 0 {
		r.closed = true
	}
	return len(r.participants), true
}

func (r *Room) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.participants[id]
	return ok
}

func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (r *Room) DisplayName(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return "", false
	}
	return p.DisplayName, true
}

// ApplyEdit overwrites the shared document with the sender's text and records
// the sender's cursor. Last writer wins: concurrent edits within a round-trip
// overwrite each other and that is the accepted policy. Returns false when
// the sender is no longer a member (edit raced a disconnect).
func (r *Room) ApplyEdit(senderID, code string, cursor *models.CursorPosition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[senderID]
	if !ok {
		return false
	}
	r.document = code
	p.CursorPosition = cursor
	return true
}

// MoveCursor updates only the sender's cursor; the document is untouched.
func (r *Room) MoveCursor(senderID string, cursor *models.CursorPosition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[senderID]
	if !ok {
		return false
	}
	p.CursorPosition = cursor
	return true
}

func (r *Room) SetVideoEnabled(senderID string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[senderID]
	if !ok {
		return false
	}
	p.VideoEnabled = enabled
	return true
}

func (r *Room) SetAudioEnabled(senderID string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[senderID]
	if !ok {
		return false
	}
	p.AudioEnabled = enabled
	return true
}

// Snapshot returns the current document text and participant map, the state a
// late joiner needs to start consistent with the room.
func (r *Room) Snapshot() (string, map[string]models.ParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document, r.infosLocked()
}

func (r *Room) infosLocked() map[string]models.ParticipantInfo {
	infos := make(map[string]models.ParticipantInfo, len(r.participants))
	for id, p := range r.participants {
		infos[id] = p.info()
	}
	return infos
}

// Status returns the REST view of the room.
func (r *Room) Status() models.RoomStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	participants := make([]models.ParticipantInfo, 0, len(r.participants))
	for _, p := range r.participants {
		participants = append(participants, p.info())
	}
	return models.RoomStatus{
		ID:               r.ID,
		HostID:           r.hostID,
		ParticipantCount: len(r.participants),
		Participants:     participants,
		CreatedAt:        r.CreatedAt,
	}
}

// Broadcast sends a frame to every participant except excludeID. Delivery is
// best-effort per recipient.
func (r *Room) Broadcast(excludeID string, frame models.Frame) {
	for _, c := range r.clients() {
		if c.ID == excludeID {
			continue
		}
		c.Send(frame)
	}
}

// BroadcastAll sends a frame to every participant in the room.
func (r *Room) BroadcastAll(frame models.Frame) {
	for _, c := range r.clients() {
		c.Send(frame)
	}
}

// SendTo delivers a frame point-to-point to one participant.
func (r *Room) SendTo(targetID string, frame models.Frame) error {
	r.mu.Lock()
	p, ok := r.participants[targetID]
	r.mu.Unlock()
	if !ok || p.client == nil {
		return ErrNotConnected
	}
	p.client.Send(frame)
	return nil
}

func (r *Room) clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Client, 0, len(r.participants))
	for _, p := range r.participants {
		if p.client != nil {
			out = append(out, p.client)
		}
	}
	return out
}
