package jsonfile

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/sudoservertools/sstbridge/internal/storage"
)

// QuarantineDir holds copies of documents that failed to parse, relative to the store root.
const QuarantineDir = "quarantine"

// Quarantine saves the unparseable bytes of path as quarantine/<name>.<timestamp>.corrupt and
// returns the quarantine path. The original is left in place; the next successful write
// replaces it.
func Quarantine(ctx context.Context, s storage.Store, filePath string, data []byte, now time.Time) (string, error) {
	name := fmt.Sprintf("%s.%s.corrupt", path.Base(filePath), now.UTC().Format("20060102T150405.000"))
	dst := path.Join(QuarantineDir, name)
	if err := s.Write(ctx, dst, data); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", filePath, err)
	}
	return dst, nil
}
