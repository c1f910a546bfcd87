// Package event provides the typed event dispatch engine of the mod host.
//
// Components publish strongly typed occurrences and independently registered
// handlers observe or cancel them, with priority ordering, cooperative
// cancellation, fan-out to ancestor shapes, and teardown scoped to the owner
// that registered them.
//
// # Shapes
//
// A shape is a Go type. Every shape is declared once, usually in init(),
// with its name, variant and dispatchable parents:
//
//	type ModEvent interface{ ModName() string }
//
//	type ModLoading struct {
//	    event.Cancellation
//	    Name string
//	}
//
//	func (e *ModLoading) ModName() string { return e.Name }
//
//	func init() {
//	    event.MustDeclare[ModEvent](event.Descriptor{Name: "mod", Dispatchable: true})
//	    event.MustDeclare[*ModLoading](event.Descriptor{
//	        Name:    "mod.loading",
//	        Variant: event.SyncCancelable,
//	        Parents: []event.ShapeID{event.ShapeOf[ModEvent]()},
//	    })
//	}
//
// # Variants
//
// Sync handlers run on the publisher's goroutine. Async handlers each run on
// their own goroutine and are awaited before the next one starts, optionally
// bounded by a timeout. For cancelable variants a handler registered with
// WithSkipIfCanceled sits out occurrences an earlier handler canceled;
// cancellation never stops the loop.
//
// # Fan-out
//
// An occurrence is delivered to its own shape's dispatcher and then to each
// dispatchable ancestor in its fan-out chain. A handler registered for a
// derived shape is also placed on every ancestor dispatcher through a cached
// proxy, so it still fires when a source of the ancestor shape publishes a
// derived instance. Within one dispatch pass a handler runs at most once per
// occurrence.
//
// # Ownership
//
// Every registration names an Owner belonging to the bus's host. When a mod
// is torn down the host calls UnregisterOwner once, which removes every
// handler and source the mod registered from every dispatcher.
//
// # Errors
//
// Wiring mistakes (nil or foreign owner, undeclared shape) are returned
// immediately. Handler errors, panics and timeouts are logged at warn and
// never reach the publisher.
package event
