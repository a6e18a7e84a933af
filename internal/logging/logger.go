package logging

import (
	"log/slog"
	"maps"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/coreos/go-systemd/v22/journal"
)

// Identifier tags journal entries.
const Identifier = "camctl"

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Equal reports whether c and other set the same levels and format.
func (c Config) Equal(other Config) bool {
	return c.Level == other.Level && c.Format == other.Format && maps.Equal(c.Modules, other.Modules)
}

// ModuleLevel is the effective level of one module logger.
type ModuleLevel struct {
	Module string
	Level  string
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true
	applyLevels()

	// Loggers handed out before Initialize keep their handler but follow
	// the new levels; later callers get the configured format.
	for module, levelVar := range moduleLevelVars {
		moduleLoggers[module] = slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// SetLevels changes the global and per-module levels at runtime. Modules
// missing from modules fall back to level. Unknown level names are ignored.
func SetLevels(level string, modules map[string]string) {
	mutex.Lock()
	defer mutex.Unlock()

	if parseLevel(level) != nil {
		globalConfig.Level = level
	}
	next := make(map[string]string, len(modules))
	for module, l := range modules {
		if parseLevel(l) != nil {
			next[module] = l
		}
	}
	globalConfig.Modules = next
	applyLevels()
}

// Levels reports the global level and the effective level of every module
// logger created so far, sorted by module.
func Levels() (string, []ModuleLevel) {
	mutex.RLock()
	defer mutex.RUnlock()

	out := make([]ModuleLevel, 0, len(moduleLevelVars))
	for module, levelVar := range moduleLevelVars {
		out = append(out, ModuleLevel{Module: module, Level: levelName(levelVar.Level())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return levelName(globalLevelVar.Level()), out
}

// applyLevels pushes globalConfig into every LevelVar. Caller holds mutex.
func applyLevels() {
	globalLevelVar.Set(levelFor(""))
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(levelFor(module))
	}
}

// levelFor resolves the configured level of module. Caller holds mutex.
func levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if parsed := parseLevel(globalConfig.Level); parsed != nil {
		level = *parsed
	}
	if module == "" {
		return level
	}
	if levelStr, exists := globalConfig.Modules[module]; exists {
		if parsed := parseLevel(levelStr); parsed != nil {
			level = *parsed
		}
	}
	return level
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	levelVar := &slog.LevelVar{}
	levelVar.Set(levelFor(module))

	format := "text"
	if isInitialized {
		format = globalConfig.Format
	}

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// createHandler creates a slog handler writing to stdout and, when present,
// the systemd journal.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if journal.Enabled() {
		handlers = append(handlers, newJournalHandler(level))
	}

	switch len(handlers) {
	case 0:
		return stdoutHandler
	case 1:
		return handlers[0]
	default:
		return teeHandler(handlers)
	}
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// /dev/null is a ModeDevice and is skipped
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level string) bool {
	return parseLevel(level) != nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(level string) *slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		l := slog.LevelDebug
		return &l
	case "info":
		l := slog.LevelInfo
		return &l
	case "warn", "warning":
		l := slog.LevelWarn
		return &l
	case "error":
		l := slog.LevelError
		return &l
	default:
		return nil
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
