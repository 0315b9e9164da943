/*
Package driverapi is the seam between Titan's actors and whatever actually
moves plates and runs instruments. mover.Driver and device.Driver are
satisfied structurally by SimulatedDriver here; a hardware-backed driver
would live in its own package implementing the same two interfaces and
require no changes anywhere else in the system.
*/
package driverapi
