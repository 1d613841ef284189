package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/interviewer/internal/cache"
	"github.com/pavelanni/interviewer/internal/model"
	"github.com/pavelanni/interviewer/internal/skills"
)

var validate = validator.New()

// ImportStatus describes what ImportQuestionBank did with a file.
type ImportStatus string

const (
	ImportDone      ImportStatus = "imported"
	ImportUnchanged ImportStatus = "unchanged"
	// ImportChanged means the file differs from its earlier import and was
	// left alone so questions referenced by sessions keep their hashes.
	ImportChanged ImportStatus = "changed"
)

// ImportResult reports the outcome of one bank import.
type ImportResult struct {
	Name   string       `json:"name"`
	Status ImportStatus `json:"status"`
	Count  int          `json:"count"`
}

// ImportQuestionBank archives the curated questions in data under the
// ledger key name. Each name is imported once.
func (s *Store) ImportQuestionBank(ctx context.Context, name string, data []byte) (ImportResult, error) {
	res := ImportResult{Name: name}
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	storedHash, err := s.GetImportedFileHash(name)
	if err != nil {
		return res, fmt.Errorf("check import status for %s: %w", name, err)
	}
	switch {
	case storedHash == hash:
		res.Status = ImportUnchanged
		return res, nil
	case storedHash != "":
		res.Status = ImportChanged
		return res, nil
	}

	questions, err := ParseQuestionBank(data)
	if err != nil {
		return res, fmt.Errorf("parse %s: %w", name, err)
	}
	for _, q := range questions {
		if err := s.ArchiveQuestion(ctx, q); err != nil {
			return res, err
		}
	}
	if err := s.SetImportedFileHash(name, hash); err != nil {
		return res, fmt.Errorf("record import for %s: %w", name, err)
	}
	res.Status = ImportDone
	res.Count = len(questions)
	return res, nil
}

// ParseQuestionBank decodes and validates a JSON array of curated
// questions. Topics are folded and content hashes assigned.
func ParseQuestionBank(data []byte) ([]model.Question, error) {
	var imports []model.QuestionImport
	if err := json.Unmarshal(data, &imports); err != nil {
		return nil, err
	}
	out := make([]model.Question, 0, len(imports))
	for i, qi := range imports {
		if err := validate.Struct(qi); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				return nil, fmt.Errorf("question %d: validation error: %s - %s", i+1, verrs[0].Field(), verrs[0].Tag())
			}
			return nil, fmt.Errorf("question %d: %w", i+1, err)
		}
		if !qi.Kind.Valid() {
			return nil, fmt.Errorf("question %d: unknown kind %q", i+1, qi.Kind)
		}
		focus := qi.FocusKind
		if focus == "" {
			focus = model.FocusSkillValidation
		}
		if !focus.Valid() {
			return nil, fmt.Errorf("question %d: unknown focus kind %q", i+1, focus)
		}
		q := model.Question{
			Text:       qi.Text,
			Kind:       qi.Kind,
			Difficulty: qi.Difficulty,
			Topic:      skills.Fold(qi.Topic),
			FocusKind:  focus,
			Expected:   qi.Expected,
			Source:     model.SourceImported,
		}
		q.Hash = cache.Hash(q)
		out = append(out, q)
	}
	return out, nil
}
