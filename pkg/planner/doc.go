/*
Package planner has no actor, no mailbox, and no mutable state: Plan is a
pure function of the deck snapshot (tiles and tracks) handed to it on every
call. Callers that need planning concurrently with a changing deck just
take a new snapshot and call Plan again; two calls never interfere.

Destinations and sources are Anchors. An Anchor with TrackID set is a
mid-track position addressed by signed distance; one with TrackID empty is
a free coordinate that Plan snaps to the nearest track endpoint, tie-broken
by lowest track ID when multiple endpoints are equidistant.

Routing across tracks runs Dijkstra over a graph whose nodes are track
endpoint clusters (endpoints within TrackConnectionEpsilonMM of each other
are unioned into one cluster) and whose edges are tracks weighted by
length. Ties in total cost are broken by the lexicographically lowest
trailing track ID, keeping route selection deterministic across identical
deck snapshots.
*/
package planner
