package api

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/event"
	"github.com/dshills/modhost/internal/event/events"
	"github.com/dshills/modhost/internal/event/topic"
	"github.com/dshills/modhost/internal/plugin/lua"
)

// EventModule implements modhost.event.
//
// A subscription resolves its pattern against the declared shape names once,
// at subscription time, and registers one handler per resolved shape with
// the mod as owner. When a pattern selects both a shape and one of its
// ancestors, only the ancestor is registered so each occurrence reaches the
// Lua function once.
type EventModule struct {
	ctx    *Context
	bridge *lua.Bridge

	mu     sync.Mutex
	subs   map[string]*subscription
	nextID uint64
	closed bool
}

type subscription struct {
	id       string
	pattern  topic.Topic
	handlers []*luaHandler
}

// luaHandler delivers occurrences of one shape to a Lua function.
type luaHandler struct {
	m     *EventModule
	sub   string
	shape event.ShapeID
	fn    *glua.LFunction
}

// NewEventModule creates a new event module.
func NewEventModule(ctx *Context) *EventModule {
	return &EventModule{
		ctx:  ctx,
		subs: make(map[string]*subscription),
	}
}

// Name returns the module name.
func (m *EventModule) Name() string {
	return "event"
}

// RequiredCapability returns the capability required for this module.
func (m *EventModule) RequiredCapability() lua.Capability {
	return lua.CapabilityEvent
}

// Open builds the module table.
func (m *EventModule) Open(L *glua.LState) *glua.LTable {
	m.bridge = lua.NewBridge(L)

	mod := L.NewTable()
	L.SetField(mod, "on", L.NewFunction(m.on))
	L.SetField(mod, "off", L.NewFunction(m.off))
	L.SetField(mod, "emit", L.NewFunction(m.emit))
	L.SetField(mod, "names", L.NewFunction(m.names))

	priorities := L.NewTable()
	for _, p := range []event.Priority{
		event.PriorityLowest, event.PriorityLow, event.PriorityNormal,
		event.PriorityHigh, event.PriorityHighest,
	} {
		L.SetField(priorities, p.String(), glua.LNumber(p))
	}
	L.SetField(mod, "priority", priorities)

	return mod
}

// Subscriptions returns the number of live subscriptions.
func (m *EventModule) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Cleanup releases every Lua function reference. The engine registrations
// are removed by the owner sweep when the mod is unloaded; handlers that
// still fire before that are no-ops.
func (m *EventModule) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		for _, h := range sub.handlers {
			h.fn = nil
		}
	}
	m.subs = make(map[string]*subscription)
	m.closed = true
}

// charge counts one host call against the mod's budget.
func (m *EventModule) charge(L *glua.LState) bool {
	if m.ctx.State != nil && m.ctx.State.Sandbox().CountCall() {
		L.RaiseError("%v", lua.ErrCallLimit)
		return false
	}
	return true
}

// on(pattern, fn[, opts]) -> id
// opts: priority (number), skip_canceled (bool).
func (m *EventModule) on(L *glua.LState) int {
	if !m.charge(L) {
		return 0
	}

	pattern := topic.Topic(L.CheckString(1))
	fn := L.CheckFunction(2)
	opts := L.OptTable(3, nil)

	if !pattern.IsValid() {
		L.ArgError(1, "invalid event pattern")
		return 0
	}

	handlerOpts := []event.HandlerOption{event.WithName("lua:" + m.ctx.Mod)}
	if opts != nil {
		if p, ok := m.bridge.GetTableInt(opts, "priority"); ok {
			handlerOpts = append(handlerOpts, event.WithPriority(event.Priority(p)))
		}
		if skip, ok := m.bridge.GetTableBool(opts, "skip_canceled"); ok {
			handlerOpts = append(handlerOpts, event.WithSkipIfCanceled(skip))
		}
	}

	shapes := resolve(pattern)
	if len(shapes) == 0 {
		L.ArgError(1, fmt.Sprintf("no event matches %q", pattern))
		return 0
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		L.RaiseError("event module is closed")
		return 0
	}
	m.nextID++
	sub := &subscription{
		id:      fmt.Sprintf("%s:%d", m.ctx.Mod, m.nextID),
		pattern: pattern,
	}
	m.mu.Unlock()

	for _, shape := range shapes {
		h := &luaHandler{m: m, sub: sub.id, shape: shape, fn: fn}
		if _, err := m.ctx.Bus.RegisterShapeHandler(m.ctx.Owner, shape, h, handlerOpts...); err != nil {
			m.unregister(sub.handlers)
			L.RaiseError("on(%q): %v", pattern, err)
			return 0
		}
		sub.handlers = append(sub.handlers, h)
	}

	m.mu.Lock()
	m.subs[sub.id] = sub
	m.mu.Unlock()

	L.Push(glua.LString(sub.id))
	return 1
}

// off(id) -> bool
func (m *EventModule) off(L *glua.LState) int {
	if !m.charge(L) {
		return 0
	}

	id := L.CheckString(1)

	m.mu.Lock()
	sub, ok := m.subs[id]
	delete(m.subs, id)
	m.mu.Unlock()

	if !ok {
		L.Push(glua.LFalse)
		return 1
	}

	m.unregister(sub.handlers)
	L.Push(glua.LTrue)
	return 1
}

func (m *EventModule) unregister(handlers []*luaHandler) {
	for _, h := range handlers {
		_, _ = m.ctx.Bus.UnregisterShapeHandler(m.ctx.Owner, h.shape, h)
	}
}

// emit(name[, data]) -> canceled
// Publishes a mod.script occurrence from this mod.
func (m *EventModule) emit(L *glua.LState) int {
	if !m.charge(L) {
		return 0
	}

	name := L.CheckString(1)
	if name == "" {
		L.ArgError(1, "event name cannot be empty")
		return 0
	}

	evt := &events.ScriptEvent{
		Mod:  m.ctx.Mod,
		Name: name,
		Data: m.bridge.ToGoMap(L.Get(2)),
	}

	ctx := L.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	m.ctx.Scripts.Publish(ctx, evt)

	L.Push(glua.LBool(evt.IsCanceled()))
	return 1
}

// names([pattern]) -> list of declared event names
func (m *EventModule) names(L *glua.LState) int {
	if !m.charge(L) {
		return 0
	}

	names := event.Names()
	if L.GetTop() >= 1 {
		names = topic.Select(names, topic.Topic(L.CheckString(1)))
	}

	tbl := L.NewTable()
	for i, n := range names {
		tbl.RawSetInt(i+1, glua.LString(n))
	}
	L.Push(tbl)
	return 1
}

// resolve returns the shapes whose names match pattern, minus any shape that
// has a selected ancestor.
func resolve(pattern topic.Topic) []event.ShapeID {
	selected := make(map[event.ShapeID]bool)
	var ordered []event.ShapeID
	for _, name := range topic.Select(event.Names(), pattern) {
		shape, ok := event.ShapeNamed(name)
		if !ok {
			continue
		}
		selected[shape] = true
		ordered = append(ordered, shape)
	}

	var out []event.ShapeID
	for _, shape := range ordered {
		chain, err := event.FanOutChain(shape)
		if err != nil {
			continue
		}
		covered := false
		for _, anc := range chain[1:] {
			if selected[anc] {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, shape)
		}
	}
	return out
}

// Name implements event.Namer.
func (h *luaHandler) Name() string {
	return "lua:" + h.m.ctx.Mod
}

// Handle calls the Lua function with a table view of occ. Fields the
// function writes back are ignored except canceled, which sets the
// occurrence's flag when it is cancelable.
func (h *luaHandler) Handle(ctx context.Context, occ event.Event) error {
	return h.m.ctx.Runner.Run(ctx, func(ctx context.Context) error {
		h.m.mu.Lock()
		fn := h.fn
		h.m.mu.Unlock()

		state := h.m.ctx.State
		if fn == nil || state == nil || state.IsClosed() {
			return nil
		}

		tbl := h.m.occurrenceTable(occ)
		if _, err := state.CallFunction(ctx, fn, tbl); err != nil {
			return fmt.Errorf("mod %s: %w", h.m.ctx.Mod, err)
		}

		if c, ok := occ.(event.Cancelable); ok {
			if v, ok := tbl.RawGetString("canceled").(glua.LBool); ok && bool(v) != c.IsCanceled() {
				c.SetCanceled(bool(v))
			}
		}
		return nil
	})
}

// occurrenceTable builds the table a Lua handler receives.
func (m *EventModule) occurrenceTable(occ event.Event) *glua.LTable {
	var fields map[string]any
	if f, ok := occ.(events.Fielder); ok {
		fields = f.Fields()
	}
	tbl, ok := m.bridge.ToLuaValue(fields).(*glua.LTable)
	if !ok {
		tbl = m.bridge.L.NewTable()
	}

	tbl.RawSetString("name", glua.LString(event.NameOf(reflect.TypeOf(occ))))
	_, cancelable := occ.(event.Cancelable)
	tbl.RawSetString("cancelable", glua.LBool(cancelable))
	tbl.RawSetString("canceled", glua.LBool(event.IsCanceled(occ)))
	return tbl
}
