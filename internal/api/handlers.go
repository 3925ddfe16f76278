package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/abhaydixit07/codehive-server/internal/metrics"
	"github.com/abhaydixit07/codehive-server/internal/models"
	"github.com/abhaydixit07/codehive-server/internal/session"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handlers struct {
	log          *zap.Logger
	registry     *session.Registry
	bridge       *session.Bridge
	webrtcConfig webrtc.Configuration
}

func NewHandlers(log *zap.Logger, registry *session.Registry, bridge *session.Bridge, webrtcConfig webrtc.Configuration) *Handlers {
	return &Handlers{
		log:          log,
		registry:     registry,
		bridge:       bridge,
		webrtcConfig: webrtcConfig,
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// CreateRoom provisions a room over REST for clients that create before
// opening the socket. Same semantics as the create_room WS event.
func (h *Handlers) CreateRoom(w http.ResponseWriter, _ *http.Request) {
	id := h.registry.CreateRoom()
	writeJSON(w, models.RoomCreated{RoomID: id})
}

func (h *Handlers) GetRoomStatus(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	room, ok := h.registry.Get(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, room.Status())
}

func (h *Handlers) GetWebRTCConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}{ICEServers: h.webrtcConfig.ICEServers})
}

// CollabWS is the per-participant connection loop. A fresh participant id is
// minted at upgrade time and dies with the connection; on any read failure
// the deferred cleanup leaves the participant's room exactly once.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := session.NewClient(uuid.New().String(), conn)
	h.log.Info("participant connected", zap.String("userId", client.ID))

	defer h.disconnect(client)

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			// A frame that is not valid JSON (or not an object) costs the
			// sender an error frame, nothing more. The next read discards any
			// unread remainder and starts at the next message. Only transport
			// errors end the loop.
			if isDecodeError(err) {
				h.log.Warn("malformed frame rejected",
					zap.String("userId", client.ID),
					zap.Error(err))
				client.Send(errFrame("bad_frame"))
				continue
			}
			return
		}
		h.dispatch(client, frame)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// dispatch routes one inbound frame. A malformed or unknown frame costs the
// sender an error frame and nothing else; the connection and all room state
// stay alive.
func (h *Handlers) dispatch(client *session.Client, frame models.Frame) {
	metrics.RelayedEvent(string(frame.Type))

	switch frame.Type {
	case models.EventCreateRoom:
		id := h.registry.CreateRoom()
		client.Send(models.NewFrame(models.EventRoomCreated, models.RoomCreated{RoomID: id}))

	case models.EventJoinRoom:
		h.handleJoin(client, frame)

	case models.EventCodeChange:
		h.handleCodeChange(client, frame)

	case models.EventCursorChange:
		h.handleCursorChange(client, frame)

	case models.EventSendingSignal:
		h.handleSendingSignal(client, frame)

	case models.EventReturnSignal:
		h.handleReturningSignal(client, frame)

	case models.EventToggleVideo:
		h.handleToggle(client, frame, models.EventVideoToggled)

	case models.EventToggleAudio:
		h.handleToggle(client, frame, models.EventAudioToggled)

	case models.EventChatMessage:
		h.handleChat(client, frame)

	default:
		h.log.Warn("unknown event type",
			zap.String("userId", client.ID),
			zap.String("type", string(frame.Type)))
		client.Send(errFrame("unknown_type"))
	}
}

func (h *Handlers) handleJoin(client *session.Client, frame models.Frame) {
	var req models.JoinRoomRequest
	if err := frame.Decode(&req); err != nil || req.RoomID == "" {
		client.Send(errFrame("bad_join_request"))
		return
	}

	if err := h.registry.Join(req.RoomID, client, req.DisplayName); err != nil {
		// Reported to the requester only, no broadcast.
		client.Send(models.NewFrame(models.EventRoomNotFound, models.RoomNotFound{RoomID: req.RoomID}))
		return
	}

	if err := h.bridge.Publish(models.ClusterEvent{
		Type:        models.ClusterParticipantJoined,
		RoomID:      req.RoomID,
		UserID:      client.ID,
		DisplayName: req.DisplayName,
	}); err != nil {
		h.log.Warn("publish join event failed", zap.Error(err))
	}
}

func (h *Handlers) handleCodeChange(client *session.Client, frame models.Frame) {
	var req models.CodeChange
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_code_change"))
		return
	}

	room, ok := h.registry.Get(req.RoomID)
	if !ok {
		return // stale event after a disconnect race, silently dropped
	}
	if !room.ApplyEdit(client.ID, req.Code, req.CursorPosition) {
		return
	}
	room.Broadcast(client.ID, models.NewFrame(models.EventReceiveCodeChange, models.ReceiveCodeChange{
		Code:           req.Code,
		CursorPosition: req.CursorPosition,
		SenderID:       client.ID,
	}))
}

func (h *Handlers) handleCursorChange(client *session.Client, frame models.Frame) {
	var req models.CursorChange
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_cursor_change"))
		return
	}

	room, ok := h.registry.Get(req.RoomID)
	if !ok {
		return
	}
	if !room.MoveCursor(client.ID, req.CursorPosition) {
		return
	}
	room.Broadcast(client.ID, models.NewFrame(models.EventReceiveCursor, models.ReceiveCursorPosition{
		SenderID:       client.ID,
		CursorPosition: req.CursorPosition,
	}))
}

func (h *Handlers) handleSendingSignal(client *session.Client, frame models.Frame) {
	var req models.SendingSignal
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_signal"))
		return
	}

	room, ok := h.registry.Get(req.RoomID)
	if !ok {
		return
	}
	callerName, _ := room.DisplayName(client.ID)
	// Fire and forget: an unreachable target is not an error to the sender.
	if err := room.SendTo(req.TargetID, models.NewFrame(models.EventIncomingSignal, models.IncomingSignal{
		Signal:     req.Signal,
		CallerID:   client.ID,
		CallerName: callerName,
	})); err != nil {
		h.log.Debug("signal target unreachable",
			zap.String("targetId", req.TargetID),
			zap.String("callerId", client.ID))
	}
}

func (h *Handlers) handleReturningSignal(client *session.Client, frame models.Frame) {
	var req models.ReturningSignal
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_signal"))
		return
	}

	// The responder answers from inside its own room; the original caller is
	// a member of the same one.
	room, ok := h.registry.FindRoomByParticipant(client.ID)
	if !ok {
		return
	}
	if err := room.SendTo(req.CallerID, models.NewFrame(models.EventSignalReturned, models.SignalReturned{
		Signal:      req.Signal,
		ResponderID: client.ID,
	})); err != nil {
		h.log.Debug("return signal target unreachable",
			zap.String("callerId", req.CallerID),
			zap.String("responderId", client.ID))
	}
}

func (h *Handlers) handleToggle(client *session.Client, frame models.Frame, outbound models.EventType) {
	var req models.ToggleRequest
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_toggle"))
		return
	}

	room, ok := h.registry.Get(req.RoomID)
	if !ok {
		return
	}
	var applied bool
	if outbound == models.EventVideoToggled {
		applied = room.SetVideoEnabled(client.ID, req.Enabled)
	} else {
		applied = room.SetAudioEnabled(client.ID, req.Enabled)
	}
	if !applied {
		return
	}
	room.Broadcast(client.ID, models.NewFrame(outbound, models.PresenceToggled{
		SenderID: client.ID,
		Enabled:  req.Enabled,
	}))
}

func (h *Handlers) handleChat(client *session.Client, frame models.Frame) {
	var req models.ChatMessage
	if err := frame.Decode(&req); err != nil {
		client.Send(errFrame("bad_chat_message"))
		return
	}

	var senderName string
	if room, ok := h.registry.FindRoomByParticipant(client.ID); ok {
		senderName, _ = room.DisplayName(client.ID)
	}
	sentAt := time.Now()

	// Chat fans out to every connection in every room on this instance, and
	// via the bridge to every other instance.
	h.registry.BroadcastAll(models.NewFrame(models.EventReceiveChatMessage, models.ReceiveChatMessage{
		SenderID:   client.ID,
		SenderName: senderName,
		Message:    req.Message,
		SentAt:     sentAt,
	}))

	if err := h.bridge.Publish(models.ClusterEvent{
		Type:        models.ClusterChat,
		UserID:      client.ID,
		DisplayName: senderName,
		Message:     req.Message,
		Timestamp:   sentAt,
	}); err != nil {
		h.log.Warn("publish chat event failed", zap.Error(err))
	}
}

// disconnect drives membership cleanup exactly once when the read loop ends.
func (h *Handlers) disconnect(client *session.Client) {
	h.log.Info("participant disconnected", zap.String("userId", client.ID))

	room, ok := h.registry.FindRoomByParticipant(client.ID)
	if !ok {
		return
	}
	h.registry.Leave(room.ID, client.ID)

	if err := h.bridge.Publish(models.ClusterEvent{
		Type:   models.ClusterParticipantLeft,
		RoomID: room.ID,
		UserID: client.ID,
	}); err != nil {
		h.log.Warn("publish leave event failed", zap.Error(err))
	}
}

func errFrame(msg string) models.Frame {
	return models.NewFrame(models.EventError, models.ErrorInfo{Message: msg})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
