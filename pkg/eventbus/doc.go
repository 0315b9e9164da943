/*
Package eventbus is the system-wide nervous system every actor publishes
state changes onto and every observer (the coordinator, the snapshotter,
plates waiting on a station grant) subscribes to.

Pattern grammar: dotted segments, "*" matches one segment, a trailing "**"
matches any remaining suffix (including none). "plate.*" matches
"plate.created" but not "plate.error.step"; "**" alone matches everything.

Delivery is synchronous and best-effort: Publish walks the registered
subscriptions in registration order and calls each matching callback inline,
under the bus's own lock, so a subscriber never observes two events from the
same bus out of publication order. A callback that panics is recovered and
logged; it never prevents delivery to subscribers registered after it.
*/
package eventbus
