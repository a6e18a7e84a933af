package led

import (
	"fmt"
	"os"
	"path/filepath"
)

const sysfsLEDPath = "/sys/class/leds"

// sysfs implements Controller using Linux sysfs LED interface
type sysfs struct {
	dir  string
	name string
}

func newSysfs(root, name string) *sysfs {
	return &sysfs{dir: filepath.Join(root, name), name: name}
}

// Set writes the trigger and brightness for pattern.
func (s *sysfs) Set(pattern Pattern) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", s.name, s.dir, err)
	}

	trigger, brightness := "none", "0"
	switch pattern {
	case PatternOff:
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", "1"
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(s.dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("failed to set LED trigger: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

// Name returns the sysfs LED name.
func (s *sysfs) Name() string {
	return s.name
}
