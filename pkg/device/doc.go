/*
Package device drives a single instrument through load, process, and
unload against a Driver. Unlike the mover actor, a device has no ticking
motion to simulate: each call blocks the actor's mailbox until the driver
call returns, since a device operation either fully completes or fails
outright.

Any driver error moves the device into DeviceError and stays there until
Abort is called; retry/skip/abort decisions belong to the plate actor
driving the device, not to the device itself.

Process is the one call worth cancelling mid-flight, since an instrument
run can take far longer than the rest of the state machine combined. Abort
reaches in through a stashed context.CancelFunc rather than waiting for an
abort message to clear the mailbox behind the blocked Process call, and a
ticker publishes device.processing_progress for as long as that call runs.
Abort is refused only mid-unload, where there's no cancellable driver call
to interrupt.
*/
package device
