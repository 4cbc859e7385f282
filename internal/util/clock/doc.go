// Package clock abstracts the time operations used by polling loops.
//
// Production code uses [Real]. Tests use [Stepping], a fake clock whose
// timers fire immediately while advancing virtual time, so fixed-interval
// polls can be asserted on elapsed time without sleeping.
package clock
