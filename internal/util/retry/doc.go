// Package retry provides retry and polling helpers for transient failures.
//
// [WithExponentialBackoff] retries an operation with growing delays and is
// used around Hetzner Cloud API calls. [Poll] is a fixed-interval, bounded
// poll parameterized by a check function, an interval and an attempt cap;
// it backs both the operation waiter and the readiness poller.
package retry
