package ops

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError ImportMode = "error" // nothing is imported if any line is bad or any id exists
	ImportModeMerge ImportMode = "merge" // existing ids and bad lines are skipped
)

// ImportInput contains parameters for the ImportWallet operation.
type ImportInput struct {
	Path   string     // required
	UserID string     // optional; default: the user in the export header
	Mode   ImportMode // default: error
}

// ImportOutput contains the result of the ImportWallet operation.
type ImportOutput struct {
	UserID   string        `json:"user_id"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes a line that was not imported.
type ImportError struct {
	Line    int    `json:"line"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importRecord struct {
	line int
	item wallet.Item
}

// ImportWallet restores wallet items from a JSONL export. Items keep their
// acquisition time, redemption code and redemption state.
func ImportWallet(ctx context.Context, env *Env, input ImportInput) (*ImportOutput, error) {
	if input.Path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeMerge {
		return nil, errors.NewInvalidRequest("mode must be one of: error, merge")
	}
	if err := ValidatePath(input.Path, PathCheckRead, env.ExportsDir, env.Config); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	headerUser, records, parseErrors := parseExportFile(file)

	userID := input.UserID
	if userID == "" {
		userID = headerUser
	}
	if userID == "" {
		return nil, errors.NewInvalidRequest("user_id is required when the export has no header")
	}

	out := &ImportOutput{UserID: userID, Errors: []ImportError{}}
	if input.Mode == ImportModeError && len(parseErrors) > 0 {
		out.Errors = parseErrors
		return out, nil
	}
	out.Errors = append(out.Errors, parseErrors...)
	out.Skipped = len(parseErrors)

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("import")
	}

	_, _, err = env.Wallets.Update(ctx, userID, func(l *wallet.Ledger, w *wallet.Wallet) bool {
		var collisions []ImportError
		for _, r := range records {
			if w.Has(r.item.ID) {
				collisions = append(collisions, ImportError{
					Line:    r.line,
					ID:      r.item.ID,
					Code:    "ID_COLLISION",
					Message: fmt.Sprintf("item %q already exists", r.item.ID),
				})
			}
		}
		if input.Mode == ImportModeError && len(collisions) > 0 {
			out.Errors = collisions
			return false
		}
		out.Errors = append(out.Errors, collisions...)
		out.Skipped += len(collisions)

		for _, r := range records {
			if l.Restore(w, r.item) {
				out.Imported++
			}
		}
		return out.Imported > 0
	})
	if err != nil {
		return nil, err
	}

	env.Logger.Info("wallet imported",
		zap.String("user_id", userID),
		zap.String("path", input.Path),
		zap.Int("imported", out.Imported),
		zap.Int("skipped", out.Skipped),
	)
	return out, nil
}

// parseExportFile reads the header user and the item records of an export.
// Lines that cannot be used are reported, not fatal.
func parseExportFile(r io.Reader) (string, []importRecord, []ImportError) {
	var (
		userID      string
		records     []importRecord
		parseErrors []ImportError
		seen        = map[string]bool{}
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec exportLine
		if err := json.Unmarshal(line, &rec); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if rec.MesaExport {
			userID = rec.UserID
			continue
		}

		switch {
		case rec.ID == "":
			parseErrors = append(parseErrors, ImportError{Line: lineNum, Code: "INVALID_RECORD", Message: "missing id field"})
		case !rec.Type.IsValid():
			parseErrors = append(parseErrors, ImportError{
				Line: lineNum, ID: rec.ID, Code: "INVALID_RECORD",
				Message: fmt.Sprintf("unknown item type %q", rec.Type),
			})
		case seen[rec.ID]:
			parseErrors = append(parseErrors, ImportError{
				Line: lineNum, ID: rec.ID, Code: "DUPLICATE_ID",
				Message: fmt.Sprintf("item %q appears more than once", rec.ID),
			})
		default:
			seen[rec.ID] = true
			records = append(records, importRecord{line: lineNum, item: rec.Item})
		}
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}
	return userID, records, parseErrors
}
