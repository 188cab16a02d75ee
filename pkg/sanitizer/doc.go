// Package sanitizer normalizes user input before it is validated or stored.
//
// Helpers are stateless string functions.
package sanitizer
