// Package events provides the bounded, best-effort event broadcast used by
// the rollout managers.
//
// Each manager owns a Bus and publishes typed events to it. Subscribers get
// an independent buffered channel; publishing never blocks the producer. When
// a subscriber's buffer is full the event is dropped for that subscriber and
// counted: delivery is at-most-once, and slow consumers see gaps rather than
// backpressure. The hot path (traffic decisions, metric updates) never waits
// on a consumer.
package events
