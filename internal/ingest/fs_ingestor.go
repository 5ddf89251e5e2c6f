package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/creditreport-extractor/constants"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/entity"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
)

// FSIngestor reads from the local filesystem and keeps uploads under ArtifactDir.
type FSIngestor struct {
	docs        repository.DocumentRepository
	artifactDir string
	logger      *slog.Logger
}

func NewFSIngestor(docs repository.DocumentRepository, artifactDir string, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{docs: docs, artifactDir: artifactDir, logger: logger}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{SourcePath: path}, fmt.Errorf("abs path: %w", err)
	}
	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		return Result{SourcePath: abs}, common.NewAppError("UNSUPPORTED_FILE",
			fmt.Sprintf("unsupported or missing extension %q", ext), common.ErrInvalidInput)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		i.logger.Error("ingest.read.failed", "path", abs, "error", err)
		return Result{SourcePath: abs}, err
	}
	return i.register(ctx, abs, constants.MediaTypeForExt(ext), content)
}

// IngestUpload stores content as <hash>.<ext> under the artifact dir, then
// registers it. A repeated upload returns the existing document.
func (i *FSIngestor) IngestUpload(ctx context.Context, filename string, content []byte) (Result, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if ext == "" {
		ext = "pdf"
	}
	if err := common.NewValidator().
		Field("media_type", constants.MediaTypeForExt(ext), common.MediaType).
		Field("content", content, common.Required).
		Err(); err != nil {
		return Result{SourcePath: filename}, err
	}
	if err := os.MkdirAll(i.artifactDir, 0o755); err != nil {
		return Result{SourcePath: filename}, fmt.Errorf("artifact dir: %w", err)
	}
	sum := sha256.Sum256(content)
	dst := filepath.Join(i.artifactDir, hex.EncodeToString(sum[:])+"."+ext)
	if _, err := os.Stat(dst); errors.Is(err, fs.ErrNotExist) {
		tmp := dst + ".tmp"
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return Result{SourcePath: filename}, fmt.Errorf("write artifact: %w", err)
		}
		if err := os.Rename(tmp, dst); err != nil {
			return Result{SourcePath: filename}, fmt.Errorf("commit artifact: %w", err)
		}
	}
	return i.register(ctx, dst, constants.MediaTypeForExt(ext), content)
}

func (i *FSIngestor) register(ctx context.Context, path, mediaType string, content []byte) (Result, error) {
	sum := sha256.Sum256(content)
	out := Result{SourcePath: path, HashHex: hex.EncodeToString(sum[:]), MediaType: mediaType}

	existing, err := i.docs.GetByHash(ctx, out.HashHex)
	switch {
	case err == nil:
		out.DocumentID = existing.ID
		out.Deduplicated = true
		if existing.PageCount != nil {
			out.Pages = *existing.PageCount
		}
		i.logger.Info("ingest.deduplicated", "path", path, "document_id", existing.ID)
		return out, nil
	case !errors.Is(err, common.ErrNotFound):
		return out, err
	}

	doc := &entity.Document{
		SourcePath:  path,
		MediaType:   mediaType,
		ContentHash: out.HashHex,
		SizeBytes:   int64(len(content)),
	}
	if err := i.docs.Create(ctx, doc); err != nil {
		return out, err
	}
	out.DocumentID = doc.ID

	if mediaType == constants.MediaTypePDF {
		pages, perr := pageCount(content)
		if perr != nil {
			i.logger.Warn("ingest.inspect.failed", "document_id", doc.ID, "error", perr)
		} else if err := i.docs.SetPageCount(ctx, doc.ID, pages); err != nil {
			return out, err
		} else {
			out.Pages = pages
		}
	}
	i.logger.Info("ingest.registered", "path", path, "document_id", doc.ID, "bytes", len(content), "pages", out.Pages)
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested, and calls IngestPath
// for each allowed file. Per-file failures are collected, not returned.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, common.NewAppError("INVALID_ROOT", "root path is required", common.ErrInvalidInput)
	}

	var results []Result
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.logger.Info("ingest.directory.done", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched, "succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

// Load returns the stored bytes of a registered document.
func Load(doc *entity.Document) ([]byte, error) {
	b, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return nil, common.NewAppError("CONTENT_UNAVAILABLE",
			fmt.Sprintf("content for document %s is not readable", doc.ID), err)
	}
	return b, nil
}
