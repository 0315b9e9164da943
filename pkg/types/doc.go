/*
Package types defines the core data structures shared across Titan's
scheduling substrate.

It covers deck geometry (stator tiles, tracks, locations), the logical
resources plates contend for (stations), the itinerary a plate executes
(workflows and their steps), and the state every plate and mover carries
between actor messages. Every other package in this module depends on types
for its message payloads; types itself depends on nothing but the standard
library so it can be imported from anywhere without cycles.

# Geometry

Positions are absolute millimeters on a lower-left-origin plane, never a
display convention (the presentation layer, out of scope here, owns any
upper-left remapping). Tiles tile the deck on a dense grid; tracks are line
segments whose endpoints must lie over enabled tiles. Locations name points
of interest on top of that geometry — waypoints, device docks, pivots, queue
parking spots, and arbitrary points along a track — and are the vocabulary
the path planner and the station manager both speak.

# Plates and movers

PlateState and MoverPhysicalState are snapshots, not actors: the plate and
mover actors own the live, mutable versions of these structs behind their
mailboxes, and only ever hand out copies through Get*State asks. Mutating a
snapshot returned by a query has no effect on the running actor.
*/
package types
