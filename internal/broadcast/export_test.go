package broadcast

import "context"

// ForwardWithoutSubscription marks r subscribed and drains its outbox until
// ctx ends, for servers that never complete a PSUBSCRIBE.
func (r *RedisRelay) ForwardWithoutSubscription(ctx context.Context) {
	r.setSubscribed(true)
	go func() {
		r.forward(ctx)
		r.unsubscribe()
	}()
}
