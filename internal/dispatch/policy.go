// Package dispatch turns waiting-for-input notifications into concrete
// control responses sent back to the agent process, applying the configured
// auto-approval policy and falling back to an interactive responder.
package dispatch

import (
	"github.com/agentbridge/agentbridge/internal/common/config"
	"github.com/agentbridge/agentbridge/pkg/taskstream"
)

// Policy decides which asks resolve without prompting a front-end.
type Policy struct {
	cfg config.ApprovalConfig
}

// NewPolicy wraps the approval configuration.
func NewPolicy(cfg config.ApprovalConfig) Policy {
	return Policy{cfg: cfg}
}

// NonInteractive reports whether idle asks are auto-resolved with a default
// proceed answer instead of being surfaced to a front-end.
func (p Policy) NonInteractive() bool {
	return p.cfg.NonInteractive
}

// AutoApproves reports whether the given interactive ask is approved without
// prompting. Followup asks always need user text and are never auto-approved.
func (p Policy) AutoApproves(ask taskstream.AskKind) bool {
	switch ask {
	case taskstream.AskCommand:
		return p.cfg.AutoApproveCommands
	case taskstream.AskTool:
		return p.cfg.AutoApproveTools
	case taskstream.AskBrowserActionLaunch:
		return p.cfg.AutoApproveBrowser
	case taskstream.AskUseMCPServer:
		return p.cfg.AutoApproveMCP
	default:
		return false
	}
}
