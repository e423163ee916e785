package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/mesa/internal/errors"
	"github.com/hpungsan/mesa/internal/wallet"
)

// ExportSchemaVersion is written to every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the ExportWallet operation.
type ExportInput struct {
	UserID string // required
	Path   string // optional, default: <exports>/<user>-<timestamp>.jsonl
}

// ExportOutput contains the result of the ExportWallet operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a wallet export file.
type ExportHeader struct {
	MesaExport    bool   `json:"_mesa_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	UserID        string `json:"user_id"`
}

// ExportWallet writes a user's wallet to a JSONL file: a header line, then one
// item per line in acquisition order. The file is written to a temp name and
// renamed into place, so an existing export survives a failed run.
func ExportWallet(ctx context.Context, env *Env, input ExportInput) (*ExportOutput, error) {
	w, err := env.Wallets.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	now := env.now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = defaultExportPath(env.ExportsDir, w.UserID, now)
	}
	if err := ValidatePath(exportPath, PathCheckWrite, env.ExportsDir, env.Config); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	header := ExportHeader{
		MesaExport:    true,
		SchemaVersion: ExportSchemaVersion,
		ExportedAt:    now.Unix(),
		UserID:        w.UserID,
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}
	for _, it := range w.Items {
		select {
		case <-ctx.Done():
			return nil, errors.NewCancelled("export")
		default:
		}
		if err := enc.Encode(it); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Windows cannot rename an open file.
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if isSymlink(exportPath) {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}
	success = true

	env.Logger.Info("wallet exported",
		zap.String("user_id", w.UserID),
		zap.String("path", exportPath),
		zap.Int("count", len(w.Items)),
	)
	return &ExportOutput{Path: exportPath, Count: len(w.Items), ExportedAt: now.Unix()}, nil
}

// defaultExportPath returns <dir>/<user>-<timestamp>.jsonl.
func defaultExportPath(dir, userID string, now time.Time) string {
	name := fmt.Sprintf("%s-%s.jsonl", SanitizeForFilename(userID), now.Format("2006-01-02T150405"))
	return filepath.Join(dir, name)
}

// exportLine is either the header or one item of an export file.
type exportLine struct {
	MesaExport bool   `json:"_mesa_export"`
	UserID     string `json:"user_id"`
	wallet.Item
}
