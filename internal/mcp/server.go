package mcp

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/mesa/internal/ops"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"session", "challenge", "attempt", "table", "wallet", "catalog"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"session_start": {
		def:     sessionStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionStart },
	},
	"session_show": {
		def:     sessionShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionShow },
	},
	"session_advance": {
		def:     sessionAdvanceToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionAdvance },
	},
	"session_phase": {
		def:     sessionPhaseToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionPhase },
	},
	"challenge_show": {
		def:     challengeShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChallengeShow },
	},
	"challenge_attempt": {
		def:     challengeAttemptToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleChallengeAttempt },
	},
	"attempt_start": {
		def:     attemptStartToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAttemptStart },
	},
	"attempt_submit": {
		def:     attemptSubmitToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAttemptSubmit },
	},
	"table_join": {
		def:     tableJoinToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTableJoin },
	},
	"table_vote": {
		def:     tableVoteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTableVote },
	},
	"table_complete": {
		def:     tableCompleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTableComplete },
	},
	"wallet_show": {
		def:     walletShowToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletShow },
	},
	"wallet_redeem": {
		def:     walletRedeemToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletRedeem },
	},
	"wallet_stats": {
		def:     walletStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletStats },
	},
	"wallet_list": {
		def:     walletListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletList },
	},
	"wallet_purge": {
		def:     walletPurgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletPurge },
	},
	"wallet_export": {
		def:     walletExportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletExport },
	},
	"wallet_import": {
		def:     walletImportToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleWalletImport },
	},
	"catalog_list": {
		def:     catalogListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCatalogList },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "wallet_show" → "wallet").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Mesa tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(env *ops.Env, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"mesa",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(env)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(env.Config.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range env.Config.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(env *ops.Env, version string) error {
	s := NewServer(env, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
