/*
Package mover drives a single transport unit through a planner-produced
Plan one Command at a time. The mover actor ticks on TickInterval,
executing the next queued command against its Driver and republishing the
resulting position as a mover.position_changed event. TransportTo asks the
path planner for the route from the mover's own position; ticks only
execute the commands of that route.

Plate custody and mover custody are independent: ReleaseFromPlate clears
the assigned plate without interrupting an in-flight move, so a plate can
hand its mover back to the pool once a device has loaded it. The mover
accepts a TransportTo for another plate once its current route is
finished; until then TransportTo returns ErrBusy.
*/
package mover
