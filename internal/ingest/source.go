package ingest

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"virtualta/internal/domain"
)

// Source enumerates the raw documents of one family.
type Source interface {
	Family() domain.Family
	Walk(ctx context.Context, fn func(domain.Document) error) error
}

// DocsSource reads scraped documentation pages, one *.txt file per page.
type DocsSource struct {
	Dir     string
	BaseURL string
}

func (s DocsSource) Family() domain.Family { return domain.FamilyDocs }

// Walk visits every *.txt file under Dir in lexical order.
func (s DocsSource) Walk(ctx context.Context, fn func(domain.Document) error) error {
	return filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return fn(domain.Document{
			Family:       domain.FamilyDocs,
			RawBody:      string(data),
			CanonicalURL: DocsURL(s.BaseURL, path),
			OriginPath:   path,
		})
	})
}

// DocsURL maps data/raw/tds/2025-01_README.txt to <base>2025-01/README.
func DocsURL(base, path string) string {
	name := filepath.Base(path)
	slug := strings.TrimSuffix(name, filepath.Ext(name))
	return base + strings.ReplaceAll(slug, "_", "/")
}

// ForumSource reads forum snapshot files: JSON arrays of posts.
// The line_delimited checkpoint directory is not read.
type ForumSource struct {
	Dir    string
	Logger *zap.Logger
}

func (s ForumSource) Family() domain.Family { return domain.FamilyForum }

// Walk visits every post of every *.json file under Dir. Records that do
// not decode are logged and skipped.
func (s ForumSource) Walk(ctx context.Context, fn func(domain.Document) error) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Dir && d.Name() == "line_delimited" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".json") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var records []json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			logger.Error("forum file is not a JSON array, skipping", zap.String("path", path), zap.Error(err))
			return nil
		}
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			var p domain.Post
			if err := json.Unmarshal(rec, &p); err != nil {
				logger.Warn("malformed post record, skipping",
					zap.String("path", path), zap.Int("index", i), zap.Error(err))
				continue
			}
			if err := fn(domain.Document{
				Family:       domain.FamilyForum,
				RawBody:      p.Raw,
				ReplyBodies:  p.Replies,
				CanonicalURL: p.URL,
				OriginPath:   path,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
