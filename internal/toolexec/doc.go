// Package toolexec runs the external synthesis executables.
//
// Children are started in their own process group. The runner polls for
// completion on a fixed interval and, on the same tick, asks whether the job
// was cancelled. Cancellation sends SIGTERM to the group and reports
// services.ErrCancelled; the child is never SIGKILLed.
package toolexec
