// internal/agent/notifier.go
package agent

import (
	"errors"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// ApprovalRequest describes an action waiting for the user.
type ApprovalRequest struct {
	Seq    uint64 `json:"seq"`
	Action Action `json:"-"`
	Reason string `json:"reason"`
}

// ViewportInfo reports a finished perception cycle.
type ViewportInfo struct {
	ImagePNG     []byte `json:"-"`
	GridN        int    `json:"grid_n"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	ElementCount int    `json:"element_count"`
	Source       string `json:"source"`
}

// Notifier receives the engine's outward-facing events. Implementations must
// not block for long; errors are logged and otherwise ignored.
type Notifier interface {
	StateChanged(s State) error
	Activity(label string) error
	ApprovalRequired(req ApprovalRequest) error
	ViewportCaptured(info ViewportInfo) error
	StreamChunk(chunk llmclient.StreamChunk) error
	TaskCancelled() error
}

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) StateChanged(State) error                { return nil }
func (NopNotifier) Activity(string) error                   { return nil }
func (NopNotifier) ApprovalRequired(ApprovalRequest) error  { return nil }
func (NopNotifier) ViewportCaptured(ViewportInfo) error     { return nil }
func (NopNotifier) StreamChunk(llmclient.StreamChunk) error { return nil }
func (NopNotifier) TaskCancelled() error                    { return nil }

// LogNotifier writes every event to a logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) StateChanged(s State) error {
	n.logger.Info("State changed.", zap.String("state", string(s.Kind())), zap.String("detail", DescribeState(s)))
	return nil
}

func (n *LogNotifier) Activity(label string) error {
	n.logger.Debug("Activity.", zap.String("label", label))
	return nil
}

func (n *LogNotifier) ApprovalRequired(req ApprovalRequest) error {
	n.logger.Warn("Approval required.", zap.String("action", ActionType(req.Action)), zap.String("reason", req.Reason))
	return nil
}

func (n *LogNotifier) ViewportCaptured(info ViewportInfo) error {
	n.logger.Debug("Viewport captured.",
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Int("elements", info.ElementCount),
		zap.Int("grid_n", info.GridN),
	)
	return nil
}

func (n *LogNotifier) StreamChunk(llmclient.StreamChunk) error { return nil }

func (n *LogNotifier) TaskCancelled() error {
	n.logger.Info("Task cancelled.")
	return nil
}

// MultiNotifier fans events out to several notifiers.
type MultiNotifier []Notifier

func (m MultiNotifier) each(fn func(Notifier) error) error {
	var errs []error
	for _, n := range m {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) StateChanged(s State) error {
	return m.each(func(n Notifier) error { return n.StateChanged(s) })
}

func (m MultiNotifier) Activity(label string) error {
	return m.each(func(n Notifier) error { return n.Activity(label) })
}

func (m MultiNotifier) ApprovalRequired(req ApprovalRequest) error {
	return m.each(func(n Notifier) error { return n.ApprovalRequired(req) })
}

func (m MultiNotifier) ViewportCaptured(info ViewportInfo) error {
	return m.each(func(n Notifier) error { return n.ViewportCaptured(info) })
}

func (m MultiNotifier) StreamChunk(c llmclient.StreamChunk) error {
	return m.each(func(n Notifier) error { return n.StreamChunk(c) })
}

func (m MultiNotifier) TaskCancelled() error {
	return m.each(func(n Notifier) error { return n.TaskCancelled() })
}
