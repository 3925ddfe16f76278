package models

import (
	"encoding/json"
	"time"
)

// EventType enumerates every frame that may travel over a collaboration
// socket, in either direction. The dispatch switch in the API layer is
// exhaustive over the inbound subset; anything else is a protocol violation.
type EventType string

// Inbound events.
const (
	EventCreateRoom    EventType = "create_room"
	EventJoinRoom      EventType = "join_room"
	EventCodeChange    EventType = "code_change"
	EventCursorChange  EventType = "cursor_position_change"
	EventSendingSignal EventType = "sending_signal"
	EventReturnSignal  EventType = "returning_signal"
	EventToggleVideo   EventType = "toggle_video"
	EventToggleAudio   EventType = "toggle_audio"
	EventChatMessage   EventType = "chat_message"
)

// Outbound events.
const (
	EventRoomCreated        EventType = "room_created"
	EventRoomNotFound       EventType = "room_not_found"
	EventInitialRoomData    EventType = "initial_room_data"
	EventUserJoined         EventType = "user_joined"
	EventUserLeft           EventType = "user_left"
	EventReceiveCodeChange  EventType = "receive_code_change"
	EventReceiveCursor      EventType = "receive_cursor_position"
	EventIncomingSignal     EventType = "incoming_signal"
	EventSignalReturned     EventType = "signal_returned"
	EventPeerJoined         EventType = "peer_joined"
	EventPeerAvailable      EventType = "peer_available"
	EventVideoToggled       EventType = "video_toggled"
	EventAudioToggled       EventType = "audio_toggled"
	EventReceiveChatMessage EventType = "receive_chat_message"
	EventError              EventType = "error"
	EventServerShutdown     EventType = "server_shutdown"
)

// Frame is the wire envelope for every collaboration event.
type Frame struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame wraps a typed payload into a Frame. Payloads are plain structs
// from this package, so marshalling cannot fail in practice.
func NewFrame(t EventType, payload any) Frame {
	if payload == nil {
		return Frame{Type: t}
	}
	b, _ := json.Marshal(payload)
	return Frame{Type: t, Data: b}
}

// Decode unmarshals the frame payload into out.
func (f Frame) Decode(out any) error {
	if len(f.Data) == 0 {
		return nil
	}
	return json.Unmarshal(f.Data, out)
}

// CursorPosition mirrors the editor's line/column pair. A nil pointer means
// the participant has not reported a cursor yet.
type CursorPosition struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

// ParticipantInfo is the public view of a participant, as delivered in
// snapshots and membership notifications.
type ParticipantInfo struct {
	ID             string          `json:"id"`
	DisplayName    string          `json:"displayName"`
	VideoEnabled   bool            `json:"videoEnabled"`
	AudioEnabled   bool            `json:"audioEnabled"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

// RoomStatus is the read-only room snapshot served over REST.
type RoomStatus struct {
	ID               string            `json:"id"`
	HostID           string            `json:"hostId,omitempty"`
	ParticipantCount int               `json:"participantCount"`
	Participants     []ParticipantInfo `json:"participants"`
	CreatedAt        time.Time         `json:"createdAt"`
}

/*** Inbound payloads ***/

type JoinRoomRequest struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
}

type CodeChange struct {
	RoomID         string          `json:"roomId"`
	Code           string          `json:"code"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

type CursorChange struct {
	RoomID         string          `json:"roomId"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

// SendingSignal carries an opaque negotiation payload toward one peer. The
// relay routes on TargetID and never looks inside Signal.
type SendingSignal struct {
	RoomID   string          `json:"roomId"`
	TargetID string          `json:"targetId"`
	Signal   json.RawMessage `json:"signal"`
}

type ReturningSignal struct {
	Signal   json.RawMessage `json:"signal"`
	CallerID string          `json:"callerId"`
}

type ToggleRequest struct {
	RoomID  string `json:"roomId"`
	Enabled bool   `json:"enabled"`
}

type ChatMessage struct {
	Message string `json:"message"`
}

/*** Outbound payloads ***/

type RoomCreated struct {
	RoomID string `json:"roomId"`
}

type RoomNotFound struct {
	RoomID string `json:"roomId"`
}

type InitialRoomData struct {
	RoomID       string                     `json:"roomId"`
	Code         string                     `json:"code"`
	Participants map[string]ParticipantInfo `json:"participants"`
}

type UserJoined struct {
	Participant  ParticipantInfo            `json:"participant"`
	Participants map[string]ParticipantInfo `json:"participants"`
}

type UserLeft struct {
	UserID       string                     `json:"userId"`
	Participants map[string]ParticipantInfo `json:"participants"`
}

type ReceiveCodeChange struct {
	Code           string          `json:"code"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
	SenderID       string          `json:"senderId"`
}

type ReceiveCursorPosition struct {
	SenderID       string          `json:"senderId"`
	CursorPosition *CursorPosition `json:"cursorPosition"`
}

type IncomingSignal struct {
	Signal     json.RawMessage `json:"signal"`
	CallerID   string          `json:"callerId"`
	CallerName string          `json:"callerName,omitempty"`
}

type SignalReturned struct {
	Signal      json.RawMessage `json:"signal"`
	ResponderID string          `json:"responderId"`
}

// PeerJoined tells an existing participant that a newcomer wants to connect;
// the recipient is expected to initiate an offer toward PeerID.
type PeerJoined struct {
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
}

// PeerAvailable tells a newcomer that an existing participant is present and
// will be initiating an offer toward them.
type PeerAvailable struct {
	PeerID   string `json:"peerId"`
	PeerName string `json:"peerName"`
}

type PresenceToggled struct {
	SenderID string `json:"senderId"`
	Enabled  bool   `json:"enabled"`
}

type ReceiveChatMessage struct {
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
}

type ErrorInfo struct {
	Message string `json:"message"`
}

type ServerShutdown struct {
	Message string `json:"message"`
}

/*** Cross-instance bridge events ***/

// ClusterEventType enumerates events replicated between server instances
// over the Redis channel.
type ClusterEventType string

const (
	ClusterParticipantJoined ClusterEventType = "participant-joined"
	ClusterParticipantLeft   ClusterEventType = "participant-left"
	ClusterChat              ClusterEventType = "chat"
)

// ClusterEvent is the payload published on the Redis events channel so other
// instances can mirror global fan-out (chat) and observe presence changes.
type ClusterEvent struct {
	Type        ClusterEventType `json:"type"`
	InstanceID  string           `json:"instanceId"`
	RoomID      string           `json:"roomId,omitempty"`
	UserID      string           `json:"userId"`
	DisplayName string           `json:"displayName,omitempty"`
	Message     string           `json:"message,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
