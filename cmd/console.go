// cmd/console.go
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/agent"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

var errGoalAbandoned = errors.New("goal ended without completing")

// approver is the part of the engine the console drives.
type approver interface {
	Approve() error
	Reject() error
}

// console renders engine notices as text and answers approval prompts
// from an input line stream.
type console struct {
	out         io.Writer
	engine      approver
	answers     <-chan string
	autoApprove bool
	showStream  bool
	logger      *zap.Logger

	started   bool
	streaming bool
	outcome   error
}

// readLines forwards lines from r until EOF. The goroutine stays parked in
// Read when r never closes; that is acceptable for a process-lifetime stdin.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// follow consumes notices until the goal returns to idle, the stream closes
// or ctx ends. The returned error describes how the goal ended.
func (c *console) follow(ctx context.Context, notices <-chan agent.Notice) error {
	c.outcome = errGoalAbandoned
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notices:
			if !ok {
				return c.outcome
			}
			if c.handle(ctx, n) {
				return c.outcome
			}
		}
	}
}

// handle prints one notice and reports whether the goal is over.
func (c *console) handle(ctx context.Context, n agent.Notice) bool {
	switch n.Kind {
	case agent.NoticeState:
		s, ok := n.Payload.(agent.State)
		if !ok {
			return false
		}
		c.endStream()
		fmt.Fprintf(c.out, "[%s] %s\n", s.Kind(), agent.DescribeState(s))
		switch st := s.(type) {
		case agent.StateDone:
			c.outcome = nil
		case agent.StateError:
			c.outcome = fmt.Errorf("goal failed: %s", st.Message)
		case agent.StateIdle:
			return c.started
		default:
			c.started = true
		}
	case agent.NoticeActivity:
		if label, ok := n.Payload.(string); ok && label != "" {
			c.endStream()
			fmt.Fprintf(c.out, "  ... %s\n", label)
		}
	case agent.NoticeViewport:
		if info, ok := n.Payload.(agent.ViewportInfo); ok {
			c.endStream()
			fmt.Fprintf(c.out, "  screen %dx%d, %d elements (%s)\n", info.Width, info.Height, info.ElementCount, info.Source)
		}
	case agent.NoticeStream:
		if chunk, ok := n.Payload.(llmclient.StreamChunk); ok && c.showStream && chunk.Kind == llmclient.ChunkContent {
			c.streaming = true
			fmt.Fprint(c.out, chunk.Content)
		}
	case agent.NoticeApproval:
		if req, ok := n.Payload.(agent.ApprovalRequest); ok {
			c.endStream()
			c.ask(ctx, req)
		}
	case agent.NoticeCancelled:
		c.endStream()
		fmt.Fprintln(c.out, "Task cancelled.")
	}
	return false
}

func (c *console) endStream() {
	if c.streaming {
		fmt.Fprintln(c.out)
		c.streaming = false
	}
}

// ask prompts for a decision on req. Anything other than y or yes rejects,
// as does a closed input.
func (c *console) ask(ctx context.Context, req agent.ApprovalRequest) {
	fmt.Fprintf(c.out, "Approval required for %s: %s\n", agent.ActionType(req.Action), req.Reason)

	approved := c.autoApprove
	if approved {
		fmt.Fprintln(c.out, "Approved automatically (--yes).")
	} else {
		fmt.Fprint(c.out, "Approve? [y/N] ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-c.answers:
			if !ok {
				fmt.Fprintln(c.out)
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				approved = true
			}
		}
	}

	var err error
	if approved {
		err = c.engine.Approve()
	} else {
		err = c.engine.Reject()
	}
	if err != nil {
		c.logger.Warn("Approval decision was not applied.", zap.Uint64("seq", req.Seq), zap.Error(err))
	}
}
