package broadcast

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	relayChannelPrefix  = "twovue:game:"
	defaultRelayOutbox  = 256
	relayPublishTimeout = 2 * time.Second
)

type relayedEvent struct {
	gameID string
	ev     Event
}

// RedisRelay fans events out across server instances. Publish only queues
// the event; Run forwards the queue to Redis and feeds every received event
// into the local Broadcaster. While Run is not subscribed, events go straight
// to the local Broadcaster.
type RedisRelay struct {
	client *redis.Client
	local  *Broadcaster
	outbox chan relayedEvent

	mu         sync.RWMutex
	subscribed bool
}

// NewRedisRelay queues up to outbox events for Redis; outbox <= 0 uses the
// default. The client should have ContextTimeoutEnabled set so the publish
// timeout applies to socket I/O.
func NewRedisRelay(client *redis.Client, local *Broadcaster, outbox int) *RedisRelay {
	if outbox <= 0 {
		outbox = defaultRelayOutbox
	}
	return &RedisRelay{
		client: client,
		local:  local,
		outbox: make(chan relayedEvent, outbox),
	}
}

// Publish never blocks and never fails. A full outbox or a relay that is not
// subscribed delivers to this instance's subscribers only.
func (r *RedisRelay) Publish(gameID string, ev Event) {
	r.mu.RLock()
	queued := false
	if r.subscribed {
		select {
		case r.outbox <- relayedEvent{gameID: gameID, ev: ev}:
			queued = true
		default:
			metricRelayOutboxFullTotal.Add(1)
			log.Warn().Str("game_id", gameID).Str("event", string(ev.Type)).Msg("relay outbox full, delivering locally")
		}
	}
	r.mu.RUnlock()
	if !queued {
		r.local.Publish(gameID, ev)
	}
}

// Run subscribes to relayed events and forwards queued ones until ctx is
// cancelled or the subscription breaks.
func (r *RedisRelay) Run(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}

	r.setSubscribed(true)
	defer r.unsubscribe()

	fwdCtx, cancel := context.WithCancel(ctx)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		r.forward(fwdCtx)
	}()
	defer func() {
		cancel()
		<-forwarded
	}()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			gameID := strings.TrimPrefix(msg.Channel, relayChannelPrefix)
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed relay event")
				continue
			}
			r.local.Publish(gameID, ev)
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-r.outbox:
			r.send(ctx, item)
		}
	}
}

func (r *RedisRelay) send(ctx context.Context, item relayedEvent) {
	payload, err := json.Marshal(item.ev)
	if err == nil {
		pubCtx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
		err = r.client.Publish(pubCtx, relayChannelPrefix+item.gameID, payload).Err()
		cancel()
	}
	if err != nil {
		metricRelayPublishErrorTotal.Add(1)
		log.Warn().Err(err).Str("game_id", item.gameID).Msg("relay publish failed, delivering locally")
		r.local.Publish(item.gameID, item.ev)
	}
}

func (r *RedisRelay) setSubscribed(v bool) {
	r.mu.Lock()
	r.subscribed = v
	r.mu.Unlock()
}

// unsubscribe switches Publish to local delivery and hands anything still
// queued to the local Broadcaster.
func (r *RedisRelay) unsubscribe() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed = false
	for {
		select {
		case item := <-r.outbox:
			r.local.Publish(item.gameID, item.ev)
		default:
			return
		}
	}
}

// Subscribed reports whether Run currently holds a Redis subscription.
func (r *RedisRelay) Subscribed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribed
}
