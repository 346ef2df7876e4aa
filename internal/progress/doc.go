// Package progress fans the session controller's state changes out to
// pluggable sinks. Emit never blocks the controller; events are batched on a
// background goroutine and delivered to every sink in emission order.
package progress
