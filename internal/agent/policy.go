// internal/agent/policy.go
package agent

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"github.com/xkilldash9x/seeclaw/internal/llmclient"
)

// defaultGated lists the action types that always need a human decision
// unless configuration says otherwise.
var defaultGated = []string{llmclient.ToolExecuteTerminal, llmclient.ToolMCPCall}

// ApprovalPolicy decides which actions pause for user approval.
type ApprovalPolicy struct {
	gated map[string]bool
}

// NewApprovalPolicy builds the gated set: the defaults, plus
// require_approval_for, minus auto_approve.
func NewApprovalPolicy(cfg config.SafetyConfig, logger *zap.Logger) *ApprovalPolicy {
	p := &ApprovalPolicy{gated: make(map[string]bool)}
	for _, t := range defaultGated {
		p.gated[t] = true
	}
	for _, t := range cfg.RequireApprovalFor {
		p.gated[strings.TrimSpace(t)] = true
	}
	for _, t := range cfg.AutoApprove {
		t = strings.TrimSpace(t)
		for _, d := range defaultGated {
			if t == d {
				logger.Warn("Auto-approving a sensitive action type.", zap.String("action_type", t))
			}
		}
		delete(p.gated, t)
	}
	return p
}

// Gated lists the action types that need approval, sorted.
func (p *ApprovalPolicy) Gated() []string {
	out := make([]string, 0, len(p.gated))
	for t := range p.gated {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RequiresApproval reports whether a must wait for the user, with a short
// description of what is being asked.
func (p *ApprovalPolicy) RequiresApproval(a Action) (bool, string) {
	if !p.gated[ActionType(a)] {
		return false, ""
	}
	return true, describeForApproval(a)
}

func describeForApproval(a Action) string {
	switch v := a.(type) {
	case ExecuteTerminal:
		if v.Reason != "" {
			return fmt.Sprintf("Run terminal command %q (%s)", v.Command, v.Reason)
		}
		return fmt.Sprintf("Run terminal command %q", v.Command)
	case MCPCall:
		return fmt.Sprintf("Call tool %q on MCP server %q", v.ToolName, v.ServerName)
	case InvokeSkill:
		return fmt.Sprintf("Invoke skill %q", v.SkillName)
	case TypeText:
		return fmt.Sprintf("Type %q", v.Text)
	}
	return fmt.Sprintf("Perform %s", ActionType(a))
}
