package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/abhaydixit07/codehive-server/internal/metrics"
	"github.com/abhaydixit07/codehive-server/internal/models"
)

const eventsChannel = "codehive:events"

// Bridge replicates instance-global events over Redis pub/sub so a deployment
// with several server instances still behaves like one: chat reaches every
// connection everywhere, and presence changes are observable across
// instances. A nil *Bridge is valid and turns every method into a no-op, so
// single-instance deployments run without Redis at all.
type Bridge struct {
	rdb        *redis.Client
	registry   *Registry
	log        *zap.Logger
	instanceID string
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewBridge(redisAddr string, registry *Registry, log *zap.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		rdb:        redis.NewClient(&redis.Options{Addr: redisAddr}),
		registry:   registry,
		log:        log,
		instanceID: uuid.New().String(),
		ctx:        ctx,
		cancel:     cancel,
	}
	go b.subscribe()
	log.Info("event bridge started",
		zap.String("instanceId", b.instanceID),
		zap.String("redisAddr", redisAddr))
	return b
}

// Publish tags the event with this instance's id and puts it on the channel.
func (b *Bridge) Publish(event models.ClusterEvent) error {
	if b == nil {
		return nil
	}
	event.InstanceID = b.instanceID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(b.ctx, eventsChannel, data).Err()
}

func (b *Bridge) subscribe() {
	pubsub := b.rdb.Subscribe(b.ctx, eventsChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event models.ClusterEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.log.Warn("bad cluster event payload", zap.Error(err))
				continue
			}
			if event.InstanceID == b.instanceID {
				continue
			}
			b.handleRemote(event)
		}
	}
}

func (b *Bridge) handleRemote(event models.ClusterEvent) {
	switch event.Type {
	case models.ClusterChat:
		// Chat is global across rooms and instances; mirror it locally.
		b.registry.BroadcastAll(models.NewFrame(models.EventReceiveChatMessage, models.ReceiveChatMessage{
			SenderID:   event.UserID,
			SenderName: event.DisplayName,
			Message:    event.Message,
			SentAt:     event.Timestamp,
		}))
	case models.ClusterParticipantJoined:
		// Rooms are instance-local; presence from elsewhere feeds the
		// cluster-wide participant gauge.
		metrics.RemoteParticipantJoined()
		b.log.Info("remote participant joined",
			zap.String("roomId", event.RoomID),
			zap.String("userId", event.UserID),
			zap.String("instanceId", event.InstanceID))
	case models.ClusterParticipantLeft:
		metrics.RemoteParticipantLeft()
		b.log.Info("remote participant left",
			zap.String("roomId", event.RoomID),
			zap.String("userId", event.UserID),
			zap.String("instanceId", event.InstanceID))
	default:
		b.log.Warn("unknown cluster event type", zap.String("type", string(event.Type)))
	}
}

func (b *Bridge) Close() {
	if b == nil {
		return
	}
	b.cancel()
	_ = b.rdb.Close()
}
