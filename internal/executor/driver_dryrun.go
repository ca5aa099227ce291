// internal/executor/driver_dryrun.go
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Call is one input event recorded by the dry-run driver.
type Call struct {
	Op   string
	X, Y int
	Arg  string
	N    int
}

func (c Call) String() string {
	switch c.Op {
	case "type", "hotkey", "key":
		return fmt.Sprintf("%s %q", c.Op, c.Arg)
	case "scroll":
		return fmt.Sprintf("scroll %s x%d at (%d,%d)", c.Arg, c.N, c.X, c.Y)
	default:
		return fmt.Sprintf("%s at (%d,%d)", c.Op, c.X, c.Y)
	}
}

// DryRunDriver logs and records input instead of performing it.
type DryRunDriver struct {
	mu     sync.Mutex
	calls  []Call
	logger *zap.Logger
}

// NewDryRunDriver creates a recording driver.
func NewDryRunDriver(logger *zap.Logger) *DryRunDriver {
	return &DryRunDriver{logger: logger.Named("dry_run_input")}
}

// Calls returns a copy of everything recorded so far.
func (d *DryRunDriver) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *DryRunDriver) record(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	d.calls = append(d.calls, c)
	d.mu.Unlock()
	d.logger.Info("Dry-run input", zap.String("event", c.String()))
	return nil
}

func (d *DryRunDriver) MouseClick(ctx context.Context, x, y int) error {
	return d.record(ctx, Call{Op: "click", X: x, Y: y})
}

func (d *DryRunDriver) MouseDoubleClick(ctx context.Context, x, y int) error {
	return d.record(ctx, Call{Op: "double_click", X: x, Y: y})
}

func (d *DryRunDriver) MouseRightClick(ctx context.Context, x, y int) error {
	return d.record(ctx, Call{Op: "right_click", X: x, Y: y})
}

func (d *DryRunDriver) Scroll(ctx context.Context, x, y int, dir string, amount int) error {
	if !validDirection(dir) {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	return d.record(ctx, Call{Op: "scroll", X: x, Y: y, Arg: dir, N: amount})
}

func (d *DryRunDriver) TypeText(ctx context.Context, text string) error {
	return d.record(ctx, Call{Op: "type", Arg: text})
}

func (d *DryRunDriver) Hotkey(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return ErrEmptyKeys
	}
	return d.record(ctx, Call{Op: "hotkey", Arg: strings.Join(keys, "+")})
}

func (d *DryRunDriver) KeyPress(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKeys
	}
	return d.record(ctx, Call{Op: "key", Arg: key})
}
