package openfda

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"faersignal/domain/faers"
	"faersignal/internal"
	"faersignal/internal/errors"
	"faersignal/ports"
)

// FileFeed reads an openFDA bulk download: a single drug/event JSON
// document or a zip archive holding one or more of them.
type FileFeed struct {
	path   string
	logger *internal.Logger
}

var _ ports.ReportFeed = (*FileFeed)(nil)

func NewFileFeed(path string, logger *internal.Logger) *FileFeed {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &FileFeed{path: path, logger: logger}
}

// Stream implements ports.ReportFeed. Each document is parsed whole and
// delivered as one batch after applying q.
func (f *FileFeed) Stream(ctx context.Context, q faers.IngestQuery, sink func([]faers.Report) error) error {
	remaining := q.Limit
	emit := func(name string, data []byte) error {
		reports, skipped, err := ParseEvents(data)
		if err != nil {
			return errors.Wrapf(err, "failed to parse %s", name)
		}
		if skipped > 0 {
			f.logger.Warn("[openfda] %s: skipped %d events without an ID or receive date", name, skipped)
		}

		batch := reports[:0]
		for _, r := range reports {
			if q.Accepts(r) {
				batch = append(batch, r)
			}
		}
		if q.Limit > 0 {
			if remaining <= 0 {
				return nil
			}
			if len(batch) > remaining {
				batch = batch[:remaining]
			}
			remaining -= len(batch)
		}
		if len(batch) == 0 {
			return nil
		}
		return sink(batch)
	}

	if !strings.EqualFold(filepath.Ext(f.path), ".zip") {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read openFDA file: %w", err))
		}
		return emit(filepath.Base(f.path), data)
	}

	archive, err := zip.OpenReader(f.path)
	if err != nil {
		return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to open openFDA archive: %w", err))
	}
	defer archive.Close()

	found := 0
	for _, entry := range archive.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(filepath.Ext(entry.Name), ".json") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := readZipEntry(entry)
		if err != nil {
			return errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to read %s: %w", entry.Name, err))
		}
		found++
		if err := emit(entry.Name, data); err != nil {
			return err
		}
		if q.Limit > 0 && remaining <= 0 {
			break
		}
	}
	if found == 0 {
		return errors.InvalidInput(fmt.Sprintf("%s contains no .json documents", filepath.Base(f.path)))
	}
	return nil
}

func readZipEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
