package api

import (
	"fmt"
	"sort"
	"strings"

	glua "github.com/yuin/gopher-lua"

	"github.com/dshills/modhost/internal/logging"
	"github.com/dshills/modhost/internal/plugin/lua"
)

// LogModule implements modhost.log. It needs no capability.
type LogModule struct {
	ctx    *Context
	logger *logging.Logger
	bridge *lua.Bridge
}

// NewLogModule creates a log module writing through ctx.Logger.
func NewLogModule(ctx *Context) *LogModule {
	logger := ctx.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogModule{
		ctx:    ctx,
		logger: logger.WithField("mod", ctx.Mod),
	}
}

// Name returns the module name.
func (m *LogModule) Name() string {
	return "log"
}

// RequiredCapability returns the capability required for this module.
func (m *LogModule) RequiredCapability() lua.Capability {
	return ""
}

// Open builds the module table.
func (m *LogModule) Open(L *glua.LState) *glua.LTable {
	m.bridge = lua.NewBridge(L)

	mod := L.NewTable()
	L.SetField(mod, "debug", L.NewFunction(m.logAt(logging.LevelDebug)))
	L.SetField(mod, "info", L.NewFunction(m.logAt(logging.LevelInfo)))
	L.SetField(mod, "warn", L.NewFunction(m.logAt(logging.LevelWarn)))
	L.SetField(mod, "error", L.NewFunction(m.logAt(logging.LevelError)))
	return mod
}

// logAt returns log(msg[, fields]) for one level.
func (m *LogModule) logAt(level logging.Level) glua.LGFunction {
	return func(L *glua.LState) int {
		if m.ctx.State != nil && m.ctx.State.Sandbox().CountCall() {
			L.RaiseError("%v", lua.ErrCallLimit)
			return 0
		}

		msg := L.CheckString(1)
		if fields := L.OptTable(2, nil); fields != nil {
			msg += formatFields(m.bridge.ToGoMap(fields))
		}

		switch level {
		case logging.LevelDebug:
			m.logger.Debug("%s", msg)
		case logging.LevelInfo:
			m.logger.Info("%s", msg)
		case logging.LevelWarn:
			m.logger.Warn("%s", msg)
		default:
			m.logger.Error("%s", msg)
		}
		return 0
	}
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, fields[k])
	}
	return b.String()
}
