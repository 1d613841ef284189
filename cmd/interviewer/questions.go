package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/store"
)

func loadQuestions(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := db.ImportQuestionBank(ctx, path, data)
		if err != nil {
			return err
		}
		switch res.Status {
		case store.ImportUnchanged:
			slog.Info("questions file unchanged, skipping", "path", path)
		case store.ImportChanged:
			slog.Warn("questions file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
		default:
			slog.Info("imported questions", "path", path, "count", res.Count)
		}
	}
	return nil
}

// seedCache publishes archived root questions into the in-memory cache.
func seedCache(ctx context.Context, db *store.Store, c *cache.Cache) (int, error) {
	qs, err := db.ListQuestions(ctx, store.QuestionFilter{RootOnly: true})
	if err != nil {
		return 0, err
	}
	for _, q := range qs {
		c.Insert(q)
	}
	return len(qs), nil
}
