package plate

// The plate actor drives itself through its assigned workflow rather than
// being driven by a central scheduler: AssignWorkflow kicks off a
// self-addressed continueWorkflow message, and every phase transition
// (advance) re-sends continueWorkflow for the next one, rather than
// looping internally. This lets GetState and other control asks interleave
// between phases instead of queuing behind an entire workflow run; the
// loop only stops re-enqueueing at a safe boundary — pause, abort, error,
// or workflow completion.
//
// Pause and Abort are deliberately not mailbox messages. They are atomic
// flags set directly by the caller's goroutine and polled by the workflow
// loop at the top of every phase transition. They do not interrupt an
// advance() call already in progress (most notably the device Process ask,
// which is allowed to take as long as the instrument needs); they take
// effect at the next phase boundary after it returns.
//
// RetryStep and SkipStep go back through the mailbox like everything else,
// since they only apply while the plate is quiescent in PhaseError.
