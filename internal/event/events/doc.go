// Package events declares the event shapes raised by the mod host itself.
//
// Shapes are grouped under two dispatchable bases:
//
//   - ModEvent ("mod"): mod lifecycle and script events. A handler for
//     ModEvent sees every mod.* occurrence.
//   - HostEvent ("host"): host startup and shutdown.
//
// # Usage
//
//	bus := event.New(event.NewHostID())
//	owner := bus.NewOwner("audit")
//
//	h := event.NewHandler("veto-beta", func(ctx context.Context, e *events.ModLoading) error {
//	    if strings.HasSuffix(e.Version, "-beta") {
//	        e.Veto("beta mods disabled")
//	    }
//	    return nil
//	})
//	event.RegisterHandler[*events.ModLoading](bus, owner, h, event.WithPriority(event.PriorityHigh))
//
// Every concrete shape implements Describe for log lines and Fields for
// script runtimes.
package events
