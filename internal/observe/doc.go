// Package observe provides structured observability for fleet operations.
//
// An [Observer] receives free-form log lines, structured [Event] values and
// per-poll progress ticks. [LogObserver] writes through a logr.Logger; the
// natssink subpackage republishes events on NATS; [Tee] fans out to several
// observers. Observers must never block the caller: progress ticks are
// emitted from inside polling loops.
package observe
