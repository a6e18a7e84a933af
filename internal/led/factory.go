package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device tree model fragment to the LED used as indicator.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"NanoPC-T6", "usr_led"},
	{"Orange Pi", "blue_led"},
	{"Raspberry Pi", "ACT"},
}

// New creates an LED controller. name selects a LED under /sys/class/leds;
// when empty the board is detected. Falls back to a no-op controller if no
// LED is available.
func New(name string, logger *slog.Logger) Controller {
	if name == "" {
		model := detectBoard()
		name = ledForBoard(model)
		logger.Info("Detecting board for LED control", "board_model", model, "led", name)
	}
	if name == "" {
		logger.Info("No LED support detected, using no-op controller")
		return newNoop(logger)
	}
	return newSysfs(sysfsLEDPath, name)
}

func ledForBoard(model string) string {
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			return b.led
		}
	}
	return ""
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}

	// Device tree model contains null bytes, trim them
	return strings.TrimRight(string(data), "\x00")
}
