package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

func newIngestor(t *testing.T) (*FSIngestor, repository.DocumentRepository) {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), logger)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	t.Cleanup(db.Close)

	docs := repository.NewDocumentRepository(db, logger)
	return NewFSIngestor(docs, filepath.Join(t.TempDir(), "artifacts"), logger), docs
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestDirectory_DedupsByContent(t *testing.T) {
	ing, docs := newIngestor(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4 report one")
	writeFile(t, filepath.Join(root, "nested", "copy.PDF"), "%PDF-1.4 report one")
	writeFile(t, filepath.Join(root, "b.png"), "png bytes")
	writeFile(t, filepath.Join(root, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, ".hidden", "c.pdf"), "%PDF-1.4 hidden")

	results, stats, err := ing.IngestDirectory(context.Background(), root, true)
	require.NoError(t, err)
	assert.EqualValues(t, 3, stats.Matched)
	assert.EqualValues(t, 3, stats.Succeeded)
	assert.EqualValues(t, 1, stats.Deduplicated)
	assert.Zero(t, stats.Failed)
	require.Len(t, results, 3)

	byName := map[string]Result{}
	for _, r := range results {
		byName[filepath.Base(r.SourcePath)] = r
	}
	assert.Equal(t, byName["a.pdf"].DocumentID, byName["copy.PDF"].DocumentID)
	assert.Equal(t, constants.MediaTypePNG, byName["b.png"].MediaType)

	list, err := docs.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestIngestPath_RejectsUnsupportedExtension(t *testing.T) {
	ing, _ := newIngestor(t)
	path := filepath.Join(t.TempDir(), "report.docx")
	writeFile(t, path, "x")

	_, err := ing.IngestPath(context.Background(), path)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestIngestUpload_StoresArtifactOnce(t *testing.T) {
	ing, docs := newIngestor(t)
	ctx := context.Background()
	content := []byte("%PDF-1.4 uploaded report")

	first, err := ing.IngestUpload(ctx, "report.pdf", content)
	require.NoError(t, err)
	assert.False(t, first.Deduplicated)
	assert.FileExists(t, first.SourcePath)

	second, err := ing.IngestUpload(ctx, "renamed.pdf", content)
	require.NoError(t, err)
	assert.True(t, second.Deduplicated)
	assert.Equal(t, first.DocumentID, second.DocumentID)

	doc, err := docs.Get(ctx, first.DocumentID)
	require.NoError(t, err)
	loaded, err := Load(doc)
	require.NoError(t, err)
	assert.Equal(t, content, loaded)

	_, err = ing.IngestUpload(ctx, "empty.pdf", nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = ing.IngestUpload(ctx, "report.docx", content)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPageCount_InvalidPDFIsAnError(t *testing.T) {
	_, err := pageCount([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestWatch_EmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	path := filepath.Join(root, "new.pdf")
	writeFile(t, filepath.Join(root, "skip.txt"), "x")
	writeFile(t, path, "%PDF-1.4")

	select {
	case got := <-events:
		assert.Equal(t, path, got)
	case <-time.After(3 * time.Second):
		t.Fatal("no watch event")
	}
}
