package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/ops"
	"github.com/hpungsan/mesa/internal/verify"
	"github.com/hpungsan/mesa/internal/web"
)

// maxStdinBytes caps text payloads piped to attempt commands.
const maxStdinBytes = 1 << 20

// newCLIApp creates the CLI application with all commands.
// env may be nil for --help/--version; baseDir is only read by serve.
func newCLIApp(env *ops.Env, baseDir string) *cli.App {
	app := &cli.App{
		Name:    "mesa",
		Usage:   "Party challenges, tables and reward wallets",
		Version: Version,
		Commands: []*cli.Command{
			capsulesCmd(env),
			challengeCmd(env),
			startCmd(env),
			showCmd(env),
			advanceCmd(env),
			phaseCmd(env),
			attemptCmd(env),
			joinCmd(env),
			voteCmd(env),
			completeCmd(env),
			walletCmd(env),
			walletsCmd(env),
			redeemCmd(env),
			statsCmd(env),
			purgeCmd(env),
			exportCmd(env),
			importCmd(env),
			serveCmd(baseDir),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// capsulesCmd creates the capsules command.
func capsulesCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "capsules",
		Usage: "List the capsule catalog",
		Action: func(c *cli.Context) error {
			output, err := ops.ListCapsules(c.Context, env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// challengeCmd creates the challenge command.
func challengeCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "challenge",
		Usage: "Show the challenge card of an archetype",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "capsule", Aliases: []string{"c"}, Required: true, Usage: "Capsule ID"},
			&cli.StringFlag{Name: "archetype", Aliases: []string{"a"}, Required: true, Usage: "Archetype ID"},
			&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Value: "mild", Usage: "Tier: mild|intense|chaotic"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.GetChallenge(c.Context, env, ops.GetChallengeInput{
				CapsuleID:   c.String("capsule"),
				ArchetypeID: c.String("archetype"),
				Tier:        c.String("tier"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// startCmd creates the start command.
func startCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "Start a game session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "capsule", Aliases: []string{"c"}, Required: true, Usage: "Capsule ID"},
			&cli.StringFlag{Name: "tier", Aliases: []string{"t"}, Value: "mild", Usage: "Tier: mild|intense|chaotic"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "User whose wallet receives rewards"},
			&cli.StringFlag{Name: "venue", Usage: "Venue ID"},
			&cli.StringFlag{Name: "campaign", Usage: "Campaign ID"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.StartSession(c.Context, env, ops.StartSessionInput{
				CapsuleID: c.String("capsule"),
				Tier:      c.String("tier"),
				UserID:    c.String("user"),
				Venue:     c.String("venue"),
				Campaign:  c.String("campaign"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a session with its current card",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "attempts", Usage: "Include the session's attempts"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.GetSession(c.Context, env, ops.GetSessionInput{
				ID:              c.Args().First(),
				IncludeAttempts: c.Bool("attempts"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// advanceCmd creates the advance command.
func advanceCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "advance",
		Usage:     "Move a session to its next archetype",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "points", Aliases: []string{"p"}, Usage: "Points to add before advancing"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.AdvanceSession(c.Context, env, ops.AdvanceSessionInput{
				ID:     c.Args().First(),
				Points: c.Int("points"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// phaseCmd creates the phase command.
func phaseCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "phase",
		Usage:     "Move a session to another phase",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Required: true, Usage: "Phase: intro|challenge|recording|voting|results|summary"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.SetPhase(c.Context, env, ops.SetPhaseInput{
				ID:    c.Args().First(),
				Phase: c.String("to"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// attemptCmd creates the attempt command and its subcommands.
func attemptCmd(env *ops.Env) *cli.Command {
	payloadFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "photo", Usage: "Photo reference"},
			&cli.StringFlag{Name: "audio", Usage: "Audio reference"},
			&cli.StringFlag{Name: "text", Usage: "Text answer (- reads stdin)"},
			&cli.IntFlag{Name: "votes", Usage: "Group votes, when the session has no table"},
			&cli.IntFlag{Name: "participants", Value: 1, Usage: "Participants, when the session has no table"},
		}
	}

	return &cli.Command{
		Name:  "attempt",
		Usage: "Start, submit or run a verification attempt",
		Subcommands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Open an attempt on the current challenge",
				ArgsUsage: "<session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "verification", Usage: "Override method: self|group|photo|audio|ai"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.StartAttempt(c.Context, env, ops.StartAttemptInput{
						SessionID:    c.Args().First(),
						Verification: c.String("verification"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "submit",
				Usage:     "Submit the payload of the open attempt",
				ArgsUsage: "<session-id>",
				Flags:     payloadFlags(),
				Action: func(c *cli.Context) error {
					payload, err := readPayload(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.SubmitAttempt(c.Context, env, ops.SubmitAttemptInput{
						SessionID:    c.Args().First(),
						Payload:      payload,
						Participants: c.Int("participants"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:      "run",
				Usage:     "Start and submit an attempt in one step",
				ArgsUsage: "<session-id>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "verification", Usage: "Override method: self|group|photo|audio|ai"},
				}, payloadFlags()...),
				Action: func(c *cli.Context) error {
					payload, err := readPayload(c)
					if err != nil {
						return outputError(err)
					}
					output, err := ops.AttemptChallenge(c.Context, env, ops.AttemptChallengeInput{
						SessionID:    c.Args().First(),
						Verification: c.String("verification"),
						Payload:      payload,
						Participants: c.Int("participants"),
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// joinCmd creates the join command.
func joinCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "join",
		Usage:     "Join the table of a session",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "Participant name"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.JoinTable(c.Context, env, ops.JoinTableInput{
				SessionID: c.Args().First(),
				Name:      c.String("name"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// voteCmd creates the vote command.
func voteCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "vote",
		Usage:     "Vote for a card at a session's table",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "participant", Aliases: []string{"p"}, Required: true, Usage: "Participant ID"},
			&cli.StringFlag{Name: "card", Usage: "Card ID (default: the current card)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.CastVote(c.Context, env, ops.CastVoteInput{
				SessionID:     c.Args().First(),
				ParticipantID: c.String("participant"),
				CardID:        c.String("card"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// completeCmd creates the complete command.
func completeCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "Credit a completed card to a participant",
		ArgsUsage: "<session-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "participant", Aliases: []string{"p"}, Required: true, Usage: "Participant ID"},
			&cli.StringFlag{Name: "card", Required: true, Usage: "Card ID"},
			&cli.StringFlag{Name: "attempt", Usage: "Completed attempt whose points are credited"},
			&cli.IntFlag{Name: "points", Usage: "Points to credit without an attempt"},
			&cli.IntFlag{Name: "intensity", Usage: "Intensity to credit without an attempt"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.CompleteCard(c.Context, env, ops.CompleteCardInput{
				SessionID:     c.Args().First(),
				ParticipantID: c.String("participant"),
				CardID:        c.String("card"),
				AttemptID:     c.String("attempt"),
				Points:        c.Int("points"),
				Intensity:     c.Int("intensity"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// walletCmd creates the wallet command.
func walletCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "wallet",
		Usage:     "Show a user's wallet",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Aliases: []string{"t"}, Usage: "Filter by item type: card|sticker|reward|discount|experience|vault"},
			&cli.StringFlag{Name: "capsule", Aliases: []string{"c"}, Usage: "Filter by capsule ID"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ShowWallet(c.Context, env, ops.ShowWalletInput{
				UserID:    c.Args().First(),
				Type:      c.String("type"),
				CapsuleID: c.String("capsule"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// walletsCmd creates the wallets command.
func walletsCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "wallets",
		Usage: "List every user holding a wallet",
		Action: func(c *cli.Context) error {
			output, err := ops.ListWallets(c.Context, env)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// redeemCmd creates the redeem command.
func redeemCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "redeem",
		Usage:     "Redeem a wallet item",
		ArgsUsage: "<user-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "item", Aliases: []string{"i"}, Required: true, Usage: "Item ID"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Redeem(c.Context, env, ops.RedeemInput{
				UserID: c.Args().First(),
				ItemID: c.String("item"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "stats",
		Usage:     "Show wallet counters for a user",
		ArgsUsage: "<user-id>",
		Action: func(c *cli.Context) error {
			output, err := ops.WalletStats(c.Context, env, ops.WalletStatsInput{UserID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Remove expired, unredeemed wallet items",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Only purge this user's wallet"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.PurgeExpired(c.Context, env, ops.PurgeInput{UserID: c.String("user")})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export a wallet to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Required: true, Usage: "User ID"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.mesa/exports/<user>-<timestamp>.jsonl)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ExportWallet(c.Context, env, ops.ExportInput{
				UserID: c.String("user"),
				Path:   c.String("path"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "Import a wallet from a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Required: true, Usage: "Import file path"},
			&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Target user (default: the user in the file header)"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|merge"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.ImportWallet(c.Context, env, ops.ImportInput{
				Path:   c.String("path"),
				UserID: c.String("user"),
				Mode:   ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(baseDir string) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web UI and JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Value: 8080, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port < 1 || port > 65535 {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("invalid port %d", port)))
			}

			env, cleanup, err := setup(baseDir, ops.WithCountdowns())
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			defer cleanup()

			resumed, err := env.ResumeCountdowns(context.Background())
			if err != nil {
				env.Logger.Warn("failed to resume recording countdowns", zap.Error(err))
			} else if resumed > 0 {
				env.Logger.Info("resumed recording countdowns", zap.Int("sessions", resumed))
			}

			srv, err := web.NewServer(env, Version, c.String("bind"), port)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(srv, env.Logger); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if mesaErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", mesaErr.Code, mesaErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// readPayload collects the attempt payload flags. --text=- reads stdin.
func readPayload(c *cli.Context) (verify.Payload, error) {
	payload := verify.Payload{
		Photo: c.String("photo"),
		Audio: c.String("audio"),
		Text:  c.String("text"),
		Votes: c.Int("votes"),
	}
	if payload.Text == "-" {
		if !stdinHasData() {
			return payload, errors.NewInvalidRequest("text must be piped via stdin")
		}
		text, err := readStdin(maxStdinBytes)
		if err != nil {
			return payload, errors.NewInvalidRequest(err.Error())
		}
		payload.Text = text
	}
	return payload, nil
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads at most limit bytes from stdin.
func readStdin(limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("stdin exceeds %d bytes", limit)
	}
	return strings.TrimSpace(string(data)), nil
}
