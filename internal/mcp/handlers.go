package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/ops"
	"github.com/hpungsan/mesa/internal/verify"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	env *ops.Env
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(env *ops.Env) *Handlers {
	return &Handlers{env: env}
}

// Request types for each tool

// SessionStartRequest represents the arguments for session_start.
type SessionStartRequest struct {
	CapsuleID string `json:"capsule_id"`
	Tier      string `json:"tier,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Venue     string `json:"venue,omitempty"`
	Campaign  string `json:"campaign,omitempty"`
}

// SessionShowRequest represents the arguments for session_show.
type SessionShowRequest struct {
	ID              string `json:"id"`
	IncludeAttempts bool   `json:"include_attempts,omitempty"`
}

// SessionAdvanceRequest represents the arguments for session_advance.
type SessionAdvanceRequest struct {
	ID     string `json:"id"`
	Points int    `json:"points,omitempty"`
}

// SessionPhaseRequest represents the arguments for session_phase.
type SessionPhaseRequest struct {
	ID    string `json:"id"`
	Phase string `json:"phase"`
}

// ChallengeShowRequest represents the arguments for challenge_show.
type ChallengeShowRequest struct {
	CapsuleID   string `json:"capsule_id"`
	ArchetypeID string `json:"archetype_id"`
	Tier        string `json:"tier,omitempty"`
}

// AttemptRequest represents the arguments for challenge_attempt,
// attempt_start and attempt_submit.
type AttemptRequest struct {
	SessionID    string         `json:"session_id"`
	Verification string         `json:"verification,omitempty"`
	Payload      verify.Payload `json:"payload,omitempty"`
	Participants int            `json:"participants,omitempty"`
}

// TableJoinRequest represents the arguments for table_join.
type TableJoinRequest struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
}

// TableVoteRequest represents the arguments for table_vote.
type TableVoteRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	CardID        string `json:"card_id,omitempty"`
}

// TableCompleteRequest represents the arguments for table_complete.
type TableCompleteRequest struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	CardID        string `json:"card_id"`
	AttemptID     string `json:"attempt_id,omitempty"`
	Points        int    `json:"points,omitempty"`
	Intensity     int    `json:"intensity,omitempty"`
}

// WalletRequest represents the arguments for the wallet tools.
type WalletRequest struct {
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id,omitempty"`
	Type      string `json:"type,omitempty"`
	CapsuleID string `json:"capsule_id,omitempty"`
	Path      string `json:"path,omitempty"`
	Mode      string `json:"mode,omitempty"`
}

// Handler implementations

// HandleSessionStart handles the session_start tool call.
func (h *Handlers) HandleSessionStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionStartRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.StartSession(ctx, h.env, ops.StartSessionInput{
		CapsuleID: input.CapsuleID,
		Tier:      input.Tier,
		UserID:    input.UserID,
		Venue:     input.Venue,
		Campaign:  input.Campaign,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionShow handles the session_show tool call.
func (h *Handlers) HandleSessionShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetSession(ctx, h.env, ops.GetSessionInput{
		ID:              input.ID,
		IncludeAttempts: input.IncludeAttempts,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionAdvance handles the session_advance tool call.
func (h *Handlers) HandleSessionAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionAdvanceRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AdvanceSession(ctx, h.env, ops.AdvanceSessionInput{
		ID:     input.ID,
		Points: input.Points,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSessionPhase handles the session_phase tool call.
func (h *Handlers) HandleSessionPhase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionPhaseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetPhase(ctx, h.env, ops.SetPhaseInput{
		ID:    input.ID,
		Phase: input.Phase,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChallengeShow handles the challenge_show tool call.
func (h *Handlers) HandleChallengeShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ChallengeShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetChallenge(ctx, h.env, ops.GetChallengeInput{
		CapsuleID:   input.CapsuleID,
		ArchetypeID: input.ArchetypeID,
		Tier:        input.Tier,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleChallengeAttempt handles the challenge_attempt tool call.
func (h *Handlers) HandleChallengeAttempt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttemptRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.AttemptChallenge(ctx, h.env, ops.AttemptChallengeInput{
		SessionID:    input.SessionID,
		Verification: input.Verification,
		Payload:      input.Payload,
		Participants: input.Participants,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAttemptStart handles the attempt_start tool call.
func (h *Handlers) HandleAttemptStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttemptRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.StartAttempt(ctx, h.env, ops.StartAttemptInput{
		SessionID:    input.SessionID,
		Verification: input.Verification,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAttemptSubmit handles the attempt_submit tool call.
func (h *Handlers) HandleAttemptSubmit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttemptRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SubmitAttempt(ctx, h.env, ops.SubmitAttemptInput{
		SessionID:    input.SessionID,
		Payload:      input.Payload,
		Participants: input.Participants,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTableJoin handles the table_join tool call.
func (h *Handlers) HandleTableJoin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TableJoinRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.JoinTable(ctx, h.env, ops.JoinTableInput{
		SessionID: input.SessionID,
		Name:      input.Name,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTableVote handles the table_vote tool call.
func (h *Handlers) HandleTableVote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TableVoteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CastVote(ctx, h.env, ops.CastVoteInput{
		SessionID:     input.SessionID,
		ParticipantID: input.ParticipantID,
		CardID:        input.CardID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleTableComplete handles the table_complete tool call.
func (h *Handlers) HandleTableComplete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TableCompleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.CompleteCard(ctx, h.env, ops.CompleteCardInput{
		SessionID:     input.SessionID,
		ParticipantID: input.ParticipantID,
		CardID:        input.CardID,
		AttemptID:     input.AttemptID,
		Points:        input.Points,
		Intensity:     input.Intensity,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletShow handles the wallet_show tool call.
func (h *Handlers) HandleWalletShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ShowWallet(ctx, h.env, ops.ShowWalletInput{
		UserID:    input.UserID,
		Type:      input.Type,
		CapsuleID: input.CapsuleID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletRedeem handles the wallet_redeem tool call.
func (h *Handlers) HandleWalletRedeem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Redeem(ctx, h.env, ops.RedeemInput{
		UserID: input.UserID,
		ItemID: input.ItemID,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletStats handles the wallet_stats tool call.
func (h *Handlers) HandleWalletStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.WalletStats(ctx, h.env, ops.WalletStatsInput{UserID: input.UserID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletList handles the wallet_list tool call.
func (h *Handlers) HandleWalletList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListWallets(ctx, h.env)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletPurge handles the wallet_purge tool call.
func (h *Handlers) HandleWalletPurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.PurgeExpired(ctx, h.env, ops.PurgeInput{UserID: input.UserID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletExport handles the wallet_export tool call.
func (h *Handlers) HandleWalletExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ExportWallet(ctx, h.env, ops.ExportInput{
		UserID: input.UserID,
		Path:   input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleWalletImport handles the wallet_import tool call.
func (h *Handlers) HandleWalletImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[WalletRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ImportWallet(ctx, h.env, ops.ImportInput{
		Path:   input.Path,
		UserID: input.UserID,
		Mode:   ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCatalogList handles the catalog_list tool call.
func (h *Handlers) HandleCatalogList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := ops.ListCapsules(ctx, h.env)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if mesaErr, ok := errors.As(err); ok {
		msg := mesaErr.Message
		// Keep wrapper context such as "line 3: ..."
		if err.Error() != mesaErr.Error() && mesaErr.Code != errors.ErrInternal {
			msg = err.Error()
		}
		errorObj := map[string]any{
			"code":    mesaErr.Code,
			"message": msg,
			"status":  mesaErr.Status,
		}
		if mesaErr.Code != errors.ErrInternal && mesaErr.Details != nil {
			errorObj["details"] = mesaErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
