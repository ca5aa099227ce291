// internal/executor/driver.go
package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// Driver names accepted by executor.driver.
const (
	DriverXdotool = "xdotool"
	DriverDryRun  = "dry_run"
)

// Scroll directions.
const (
	ScrollUp    = "up"
	ScrollDown  = "down"
	ScrollLeft  = "left"
	ScrollRight = "right"
)

var (
	// ErrInvalidDirection is returned for a scroll direction outside up/down/left/right.
	ErrInvalidDirection = errors.New("invalid scroll direction")
	// ErrEmptyKeys is returned when a hotkey or key press names no key.
	ErrEmptyKeys = errors.New("no keys given")
)

// NoPosition asks Scroll to act at the current pointer position.
const NoPosition = -1

// Driver synthesizes input events. Coordinates are physical screen pixels and
// text is typed literally.
type Driver interface {
	MouseClick(ctx context.Context, x, y int) error
	MouseDoubleClick(ctx context.Context, x, y int) error
	MouseRightClick(ctx context.Context, x, y int) error
	// Scroll moves the wheel amount notches in dir. x and y may be NoPosition.
	Scroll(ctx context.Context, x, y int, dir string, amount int) error
	TypeText(ctx context.Context, text string) error
	Hotkey(ctx context.Context, keys []string) error
	KeyPress(ctx context.Context, key string) error
}

// New creates the driver selected by the configuration.
func New(cfg config.ExecutorConfig, logger *zap.Logger) (Driver, error) {
	switch cfg.Driver {
	case "", DriverXdotool:
		return NewXdotoolDriver(cfg, logger), nil
	case DriverDryRun:
		return NewDryRunDriver(logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported input driver configured: '%s'", cfg.Driver)
	}
}

func validDirection(dir string) bool {
	switch dir {
	case ScrollUp, ScrollDown, ScrollLeft, ScrollRight:
		return true
	}
	return false
}
