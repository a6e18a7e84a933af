package led

import "log/slog"

// noop implements Controller as a no-op for systems without LED support
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request but performs no actual LED control
func (n *noop) Set(pattern Pattern) error {
	n.logger.Debug("LED control not available (no-op)", "pattern", pattern)
	return nil
}

// Name returns an empty name.
func (n *noop) Name() string {
	return ""
}
