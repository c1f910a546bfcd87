// Package dispatch runs individual event handlers on behalf of the event
// engine, with panic recovery, timing, and context support.
//
// # Invokers
//
// Two invokers are provided:
//
//   - SyncInvoker: runs the handler in the caller's goroutine. Used by the
//     synchronous event variants.
//
//   - AsyncInvoker: runs the handler on its own goroutine and awaits it,
//     optionally bounded by a timeout. Used by the asynchronous variants.
//     The caller still sees handlers complete one at a time.
//
// # Panic Recovery
//
// Both invokers recover from panics in handlers, so a misbehaving handler
// cannot take down the host. Panics are reported in the Result and via an
// optional PanicHandler callback.
//
// # Usage
//
//	inv := dispatch.NewAsyncInvoker(dispatch.WithTimeout(2 * time.Second))
//	res := inv.Invoke(ctx, occurrence, handler)
//	if !res.IsSuccess() {
//	    // log res.Error
//	}
package dispatch
