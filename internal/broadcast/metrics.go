package broadcast

import "expvar"

var (
	metricSubscribersActive      = expvar.NewInt("broadcast_subscribers_active")
	metricEventsPublishedTotal   = expvar.NewInt("broadcast_events_published_total")
	metricDeliveryFailuresTotal  = expvar.NewInt("broadcast_delivery_failures_total")
	metricRelayPublishErrorTotal = expvar.NewInt("broadcast_relay_publish_errors_total")
	metricRelayOutboxFullTotal   = expvar.NewInt("broadcast_relay_outbox_full_total")
)
