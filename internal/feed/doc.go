// Package feed owns the live telemetry subscriptions of the level on screen.
//
// A Manager starts one Handle per active level. The handle combines two
// feeds:
//
//   - Push: one measurement subscription per device. Values of the primary
//     datapoint and of configured secondary datapoints are forwarded to the
//     Sink; anything else in the message is ignored.
//   - Poll: a goroutine that asks for the latest event of every device on a
//     fixed interval and forwards events it has not seen before. It only
//     runs when the widget has event thresholds.
//
// # Stop guarantee
//
// Every Sink call is made while holding the handle's mutex and only if the
// handle has not been stopped. Stop marks the handle stopped under that
// mutex before it unsubscribes and cancels polling, so once Stop returns no
// Sink call attributable to the handle can happen, even when a transport
// still delivers a message that was already in flight.
//
// Sink implementations must not call Stop and must not block on locks held
// by the caller of Stop.
package feed
