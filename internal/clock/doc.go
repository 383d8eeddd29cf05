// Package clock abstracts the time operations the fleet schedules against.
//
// Production code injects Real(); tests inject Fake() and move time forward
// with Advance so spawn staggering and control releases can be asserted
// without sleeping.
package clock
