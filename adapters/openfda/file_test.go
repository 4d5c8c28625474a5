package openfda

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faersignal/domain/faers"
	apperrors "faersignal/internal/errors"
)

// writeZip stores files under their names in a new archive.
func writeZip(t *testing.T, files map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drug-event.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func streamAll(t *testing.T, feed *FileFeed, q faers.IngestQuery) ([]faers.Report, error) {
	t.Helper()
	var all []faers.Report
	err := feed.Stream(context.Background(), q, func(batch []faers.Report) error {
		all = append(all, batch...)
		return nil
	})
	return all, err
}

func TestFileFeed_JSON(t *testing.T) {
	reports, err := streamAll(t, NewFileFeed("testdata/events.json", nil), faers.IngestQuery{})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "10001", reports[0].SafetyReportID)
}

func TestFileFeed_AppliesQuery(t *testing.T) {
	since := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	feed := NewFileFeed("testdata/events.json", nil)

	reports, err := streamAll(t, feed, faers.IngestQuery{Since: &since})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "10002", reports[0].SafetyReportID)

	reports, err = streamAll(t, feed, faers.IngestQuery{Drug: "ASPIRIN"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "10004", reports[0].SafetyReportID)

	reports, err = streamAll(t, feed, faers.IngestQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}

func TestFileFeed_Zip(t *testing.T) {
	fixture, err := os.ReadFile("testdata/events.json")
	require.NoError(t, err)
	path := writeZip(t, map[string][]byte{
		"drug-event-0001-of-0001.json": fixture,
		"README.txt":                   []byte("ignored"),
	})

	reports, err := streamAll(t, NewFileFeed(path, nil), faers.IngestQuery{})
	require.NoError(t, err)
	assert.Len(t, reports, 3)
}

func TestFileFeed_ZipWithoutDocuments(t *testing.T) {
	path := writeZip(t, map[string][]byte{"README.txt": []byte("nothing here")})

	_, err := streamAll(t, NewFileFeed(path, nil), faers.IngestQuery{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestFileFeed_Errors(t *testing.T) {
	_, err := streamAll(t, NewFileFeed(filepath.Join(t.TempDir(), "missing.json"), nil), faers.IngestQuery{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"results": [`), 0o644))
	_, err = streamAll(t, NewFileFeed(bad, nil), faers.IngestQuery{})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}
