package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/Stalker400n/psi1-sub000/internal/playback"
)

// Channel is the Redis pub/sub channel shared by every service instance.
const Channel = "broadcast"

// Fanout is the Broadcaster used when several instances serve the same teams.
// Publish goes through Redis and RunRedisSubscriber hands every message back
// to the local Hub. Without a Redis client it degrades to the local Hub.
type Fanout struct {
	hub       *Hub
	rdb       *redis.Client
	onMessage func(teamID string)
}

func NewFanout(hub *Hub, rdb *redis.Client) *Fanout {
	return &Fanout{hub: hub, rdb: rdb}
}

// OnMessage registers fn to run for every message received from Redis,
// before it reaches the local room. It must be set before RunRedisSubscriber.
func (f *Fanout) OnMessage(fn func(teamID string)) *Fanout {
	f.onMessage = fn
	return f
}

func (f *Fanout) Subscribe(teamID string, sub playback.Subscriber) {
	f.hub.Subscribe(teamID, sub)
}

func (f *Fanout) Unsubscribe(teamID string, sub playback.Subscriber) {
	f.hub.Unsubscribe(teamID, sub)
}

// Publish sends msg to every instance. When Redis is unreachable the local
// room still gets the message and the error is returned for logging.
func (f *Fanout) Publish(ctx context.Context, teamID string, msg []byte) error {
	if f.rdb == nil {
		f.hub.Deliver(teamID, msg)
		return nil
	}
	if err := f.rdb.Publish(ctx, Channel, msg).Err(); err != nil {
		f.hub.Deliver(teamID, msg)
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

type envelope struct {
	Type   string `json:"type"`
	TeamID string `json:"teamId"`
}

// RunRedisSubscriber subscribes to Channel and delivers each message to the
// room named by its teamId. It returns when ctx is cancelled.
func (f *Fanout) RunRedisSubscriber(ctx context.Context) {
	if f.rdb == nil {
		return
	}
	sub := f.rdb.Subscribe(ctx, Channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			f.dispatch([]byte(msg.Payload))
		}
	}
}

func (f *Fanout) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Printf("queue-service: redis message decode: %v", err)
		return
	}
	if env.TeamID == "" {
		log.Printf("queue-service: redis message %q without teamId dropped", env.Type)
		return
	}
	if f.onMessage != nil {
		f.onMessage(env.TeamID)
	}
	f.hub.Deliver(env.TeamID, payload)
}
