// Package async provides structured fan-out/fan-in for per-item work.
//
// [Map] launches one task per item with bounded concurrency, joins on all
// of them, and returns one [Outcome] per item. Failures are collected, never
// propagated to siblings, which is what fleet stages need: one node's error
// must not abort processing of the others.
package async
