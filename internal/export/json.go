// Package export writes the assembled backup result to its structured
// (JSON) and tabular (CSV) destinations. It projects fields; all
// decisions were made upstream.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/olegsh/myshows-backup/internal/backup"
	"github.com/olegsh/myshows-backup/internal/errutil"
)

// WriteJSON writes the backup result as indented UTF-8 JSON, preserving
// the canonical field order.
func WriteJSON(w io.Writer, result *backup.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// SaveJSON writes the result to path, or to stdout when path is empty.
func SaveJSON(path string, result *backup.Result) (err error) {
	if path == "" {
		return WriteJSON(os.Stdout, result)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer errutil.RunAndSetError(f.Close, &err, "close output file")

	if err := WriteJSON(f, result); err != nil {
		return err
	}
	slog.Info("JSON export written", "path", path)
	return nil
}
