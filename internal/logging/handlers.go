package logging

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// journalHandler writes records to the systemd journal. Attributes become
// upper-case journal fields; groups are joined with '_'.
type journalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
	send   func(message string, priority journal.Priority, fields map[string]string) error
}

func newJournalHandler(level slog.Leveler) *journalHandler {
	return &journalHandler{
		level:  level,
		fields: map[string]string{"SYSLOG_IDENTIFIER": Identifier},
		send:   journal.Send,
	}
}

func (h *journalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *journalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := maps.Clone(h.fields)
	r.Attrs(func(a slog.Attr) bool {
		addField(fields, h.prefix, a)
		return true
	})
	return h.send(r.Message, journalPriority(r.Level), fields)
}

func (h *journalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.fields = maps.Clone(h.fields)
	for _, a := range attrs {
		addField(clone.fields, h.prefix, a)
	}
	return &clone
}

func (h *journalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + journalKey(name) + "_"
	return &clone
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalKey maps an attribute key to a valid journal field name.
func journalKey(key string) string {
	key = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return strings.TrimLeft(key, "_")
}

func addField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := prefix + journalKey(a.Key)

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, child := range a.Value.Group() {
			addField(fields, key+"_", child)
		}
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(a.Value.Float64(), 'g', -1, 64)
	default:
		fields[key] = a.Value.String()
	}
}

// teeHandler sends every record to each handler that accepts its level.
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
