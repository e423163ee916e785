package mcp

import "github.com/mark3labs/mcp-go/mcp"

var sessionStartToolDef = mcp.NewTool(
	"session_start",
	mcp.WithDescription("Start a game session on a capsule. The session begins on the capsule's first archetype."),
	mcp.WithString("capsule_id", mcp.Required(), mcp.Description("Capsule to play")),
	mcp.WithString("tier", mcp.Description("Challenge tier"), mcp.Enum("mild", "intense", "chaotic")),
	mcp.WithString("user_id", mcp.Description("Wallet that receives the session rewards")),
	mcp.WithString("venue", mcp.Description("Venue identifier")),
	mcp.WithString("campaign", mcp.Description("Campaign identifier; campaign sessions earn bonus points")),
)

var sessionShowToolDef = mcp.NewTool(
	"session_show",
	mcp.WithDescription("Show a session with its current card, final archetype and table."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithBoolean("include_attempts", mcp.Description("Include every verification attempt")),
)

var sessionAdvanceToolDef = mcp.NewTool(
	"session_advance",
	mcp.WithDescription("Add points and move a session to its next archetype without verification."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithNumber("points", mcp.Description("Points to add before advancing"), mcp.Min(0)),
)

var sessionPhaseToolDef = mcp.NewTool(
	"session_phase",
	mcp.WithDescription("Move a session between presentation phases. Entering recording starts the countdown."),
	mcp.WithString("id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("phase", mcp.Required(), mcp.Description("Target phase"),
		mcp.Enum("intro", "challenge", "recording", "voting", "results", "summary")),
)

var challengeShowToolDef = mcp.NewTool(
	"challenge_show",
	mcp.WithDescription("Show the challenge card of an archetype at a tier."),
	mcp.WithString("capsule_id", mcp.Required(), mcp.Description("Capsule id")),
	mcp.WithString("archetype_id", mcp.Required(), mcp.Description("Archetype id")),
	mcp.WithString("tier", mcp.Description("Challenge tier"), mcp.Enum("mild", "intense", "chaotic")),
)

var challengeAttemptToolDef = mcp.NewTool(
	"challenge_attempt",
	mcp.WithDescription("Start and resolve a verification attempt for the session's current card."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("verification", mcp.Description("Override the verification method"),
		mcp.Enum("self", "group", "photo", "audio", "ai")),
	mcp.WithObject("payload", mcp.Description("Evidence: photo, audio, text, votes")),
	mcp.WithNumber("participants", mcp.Description("Player count when the session has no table"), mcp.Min(0)),
)

var attemptStartToolDef = mcp.NewTool(
	"attempt_start",
	mcp.WithDescription("Open a verification attempt for the session's current card."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("verification", mcp.Description("Override the verification method"),
		mcp.Enum("self", "group", "photo", "audio", "ai")),
)

var attemptSubmitToolDef = mcp.NewTool(
	"attempt_submit",
	mcp.WithDescription("Submit evidence for the session's in-flight attempt and resolve it."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithObject("payload", mcp.Description("Evidence: photo, audio, text, votes")),
	mcp.WithNumber("participants", mcp.Description("Player count when the session has no table"), mcp.Min(0)),
)

var tableJoinToolDef = mcp.NewTool(
	"table_join",
	mcp.WithDescription("Seat a participant at the session's table, opening it on first join."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
)

var tableVoteToolDef = mcp.NewTool(
	"table_vote",
	mcp.WithDescription("Cast a participant's vote for a card. Repeat votes are absorbed."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("participant_id", mcp.Required(), mcp.Description("Voting participant")),
	mcp.WithString("card_id", mcp.Description("Card to vote for (default: the current card)")),
)

var tableCompleteToolDef = mcp.NewTool(
	"table_complete",
	mcp.WithDescription("Mark a card complete for a participant and credit points and intensity."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	mcp.WithString("participant_id", mcp.Required(), mcp.Description("Completing participant")),
	mcp.WithString("card_id", mcp.Required(), mcp.Description("Completed card")),
	mcp.WithString("attempt_id", mcp.Description("Completed attempt whose outcome is credited")),
	mcp.WithNumber("points", mcp.Description("Points to credit without an attempt"), mcp.Min(0)),
	mcp.WithNumber("intensity", mcp.Description("Intensity to credit without an attempt"), mcp.Min(0)),
)

var walletShowToolDef = mcp.NewTool(
	"wallet_show",
	mcp.WithDescription("List a user's wallet items with aggregate stats."),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Wallet owner")),
	mcp.WithString("type", mcp.Description("Filter by item type"), mcp.Enum("card", "sticker", "reward", "vault")),
	mcp.WithString("capsule_id", mcp.Description("Filter by capsule")),
)

var walletRedeemToolDef = mcp.NewTool(
	"wallet_redeem",
	mcp.WithDescription("Redeem a wallet item. Missing or already redeemed items are reported, not errors."),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Wallet owner")),
	mcp.WithString("item_id", mcp.Required(), mcp.Description("Item to redeem")),
)

var walletStatsToolDef = mcp.NewTool(
	"wallet_stats",
	mcp.WithDescription("Aggregate a user's wallet by type, rarity and redemption."),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Wallet owner")),
)

var walletListToolDef = mcp.NewTool(
	"wallet_list",
	mcp.WithDescription("List every user with a wallet."),
)

var walletPurgeToolDef = mcp.NewTool(
	"wallet_purge",
	mcp.WithDescription("Drop unredeemed items past their expiry."),
	mcp.WithString("user_id", mcp.Description("Limit to one wallet (default: all)")),
)

var walletExportToolDef = mcp.NewTool(
	"wallet_export",
	mcp.WithDescription("Export a wallet to a JSONL file."),
	mcp.WithString("user_id", mcp.Required(), mcp.Description("Wallet owner")),
	mcp.WithString("path", mcp.Description("Output .jsonl path (default: ~/.mesa/exports)")),
)

var walletImportToolDef = mcp.NewTool(
	"wallet_import",
	mcp.WithDescription("Import wallet items from a JSONL export."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Export file to read")),
	mcp.WithString("user_id", mcp.Description("Target wallet (default: the export's owner)")),
	mcp.WithString("mode", mcp.Description("Collision handling"), mcp.Enum("error", "merge")),
)

var catalogListToolDef = mcp.NewTool(
	"catalog_list",
	mcp.WithDescription("List the capsules in the catalog."),
)
