package broadcast

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscriber is one live connection registered for a game. Implementations
// must be comparable (pointer types) and Deliver must not block.
type Subscriber interface {
	Deliver(ev Event) error
}

// Broadcaster owns the per-game subscriber sets. It keeps no durable state:
// after a restart clients reconnect and reload the game.
type Broadcaster struct {
	mu    sync.Mutex
	games map[string]*subscriberSet
}

type subscriberSet struct {
	mu      sync.Mutex
	subs    map[Subscriber]struct{}
	retired bool
}

func New() *Broadcaster {
	return &Broadcaster{games: map[string]*subscriberSet{}}
}

// set returns the current set for gameID, creating it when create is true.
// The registry lock is released before the caller touches the set.
func (b *Broadcaster) set(gameID string, create bool) *subscriberSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.games[gameID]
	if set == nil && create {
		set = &subscriberSet{subs: map[Subscriber]struct{}{}}
		b.games[gameID] = set
	}
	return set
}

func (b *Broadcaster) Subscribe(gameID string, sub Subscriber) {
	for {
		set := b.set(gameID, true)
		set.mu.Lock()
		if set.retired {
			// pruned between lookup and lock; fetch the replacement
			set.mu.Unlock()
			continue
		}
		if _, ok := set.subs[sub]; !ok {
			set.subs[sub] = struct{}{}
			metricSubscribersActive.Add(1)
		}
		set.mu.Unlock()
		return
	}
}

func (b *Broadcaster) Unsubscribe(gameID string, sub Subscriber) {
	set := b.set(gameID, false)
	if set == nil {
		return
	}
	set.mu.Lock()
	if _, ok := set.subs[sub]; ok {
		delete(set.subs, sub)
		metricSubscribersActive.Add(-1)
	}
	empty := len(set.subs) == 0
	set.mu.Unlock()
	if empty {
		b.prune(gameID, set)
	}
}

// Publish delivers ev to every subscriber of gameID. Subscribers whose
// delivery fails are dropped; the remaining ones still receive the event.
func (b *Broadcaster) Publish(gameID string, ev Event) {
	set := b.set(gameID, false)
	if set == nil {
		return
	}
	metricEventsPublishedTotal.Add(1)

	set.mu.Lock()
	for sub := range set.subs {
		if err := sub.Deliver(ev); err != nil {
			delete(set.subs, sub)
			metricSubscribersActive.Add(-1)
			metricDeliveryFailuresTotal.Add(1)
			log.Warn().Err(err).Str("game_id", gameID).Str("event", string(ev.Type)).Msg("dropping subscriber after failed delivery")
		}
	}
	empty := len(set.subs) == 0
	set.mu.Unlock()

	if empty {
		b.prune(gameID, set)
	}
}

// prune retires set once it is empty and drops it from the registry if it is
// still the current set for gameID. The registry lock is only ever taken
// inside a set lock, never the other way round.
func (b *Broadcaster) prune(gameID string, set *subscriberSet) {
	set.mu.Lock()
	defer set.mu.Unlock()
	if set.retired || len(set.subs) > 0 {
		return
	}
	set.retired = true
	b.mu.Lock()
	if b.games[gameID] == set {
		delete(b.games, gameID)
	}
	b.mu.Unlock()
}

func (b *Broadcaster) SubscriberCount(gameID string) int {
	set := b.set(gameID, false)
	if set == nil {
		return 0
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.subs)
}

// GameCount reports how many games currently have at least one subscriber.
func (b *Broadcaster) GameCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.games)
}
