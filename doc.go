// Package ouro provides feedback-driven state machinery: reduce
// events into state, and feed the effects of that state back in as
// more events.
//
// The core code is in package 'core', and some command-line tools are
// in `cmd`.
//
// See https://github.com/Comcast/ouro/blob/master/README.md for more.
package ouro
