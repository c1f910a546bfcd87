package events

import (
	"fmt"
	"time"

	"github.com/dshills/modhost/internal/event/topic"
)

// Host event names.
const (
	// TopicHost is the dispatchable base of every host event.
	TopicHost topic.Topic = "host"

	// TopicHostStarted is published once every mod has been loaded.
	TopicHostStarted topic.Topic = "host.started"

	// TopicHostStopping is published before mods are unloaded at shutdown.
	TopicHostStopping topic.Topic = "host.stopping"
)

// HostEvent is implemented by every host.* occurrence.
type HostEvent interface {
	OccurredAt() time.Time
}

// HostStarted is published once every mod has been loaded.
type HostStarted struct {
	At   time.Time
	Mods []string
}

// OccurredAt implements HostEvent.
func (e *HostStarted) OccurredAt() time.Time { return e.At }

// Describe implements event.Describer.
func (e *HostStarted) Describe() string {
	return fmt.Sprintf("host.started(%d mods)", len(e.Mods))
}

// Fields implements Fielder.
func (e *HostStarted) Fields() map[string]any {
	mods := make([]any, len(e.Mods))
	for i, m := range e.Mods {
		mods[i] = m
	}
	return map[string]any{"at": e.At.Unix(), "mods": mods}
}

// HostStopping is published before mods are unloaded at shutdown. Handlers
// are awaited one at a time, so a mod can flush state before teardown.
type HostStopping struct {
	At     time.Time
	Reason string
}

// OccurredAt implements HostEvent.
func (e *HostStopping) OccurredAt() time.Time { return e.At }

// Describe implements event.Describer.
func (e *HostStopping) Describe() string {
	return fmt.Sprintf("host.stopping(%s)", e.Reason)
}

// Fields implements Fielder.
func (e *HostStopping) Fields() map[string]any {
	return map[string]any{"at": e.At.Unix(), "reason": e.Reason}
}
