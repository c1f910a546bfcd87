package events

import "github.com/dshills/modhost/internal/event"

func init() {
	modBase := []event.ShapeID{event.ShapeOf[ModEvent]()}
	hostBase := []event.ShapeID{event.ShapeOf[HostEvent]()}

	event.MustDeclare[ModEvent](event.Descriptor{Name: TopicMod, Dispatchable: true})
	event.MustDeclare[*ModLoading](event.Descriptor{Name: TopicModLoading, Variant: event.SyncCancelable, Parents: modBase})
	event.MustDeclare[*ModLoaded](event.Descriptor{Name: TopicModLoaded, Variant: event.Sync, Parents: modBase})
	event.MustDeclare[*ModUnloading](event.Descriptor{Name: TopicModUnloading, Variant: event.Sync, Parents: modBase})
	event.MustDeclare[*ModReloadRequested](event.Descriptor{Name: TopicModReload, Variant: event.AsyncCancelable, Parents: modBase})
	event.MustDeclare[*ScriptEvent](event.Descriptor{Name: TopicModScript, Variant: event.SyncCancelable, Parents: modBase})

	event.MustDeclare[HostEvent](event.Descriptor{Name: TopicHost, Dispatchable: true})
	event.MustDeclare[*HostStarted](event.Descriptor{Name: TopicHostStarted, Variant: event.Sync, Parents: hostBase})
	event.MustDeclare[*HostStopping](event.Descriptor{Name: TopicHostStopping, Variant: event.Async, Parents: hostBase})
}
