package evaluator

import (
	"context"
	"fmt"

	"github.com/pavelanni/interviewer/internal/llm"
	"github.com/pavelanni/interviewer/internal/llm/prompts"
	"github.com/pavelanni/interviewer/internal/model"
)

// OracleExtractor asks the language oracle for an extraction-only pass.
type OracleExtractor struct {
	oracle  llm.Oracle
	prompts *prompts.Set
}

// NewOracleExtractor creates an extractor backed by oracle.
func NewOracleExtractor(oracle llm.Oracle, set *prompts.Set) *OracleExtractor {
	return &OracleExtractor{oracle: oracle, prompts: set}
}

// Extract renders the extraction prompt and decodes the validated reply.
func (e *OracleExtractor) Extract(ctx context.Context, q model.Question, answer string) (prompts.Extraction, error) {
	prompt, err := e.prompts.Extract(prompts.ExtractData{Question: q.Text, Answer: answer})
	if err != nil {
		return prompts.Extraction{}, err
	}
	raw, err := e.oracle.Generate(ctx, prompt, llm.Options{
		Temperature: 0,
		MaxTokens:   800,
		JSONSchema:  prompts.ExtractionSchema,
	})
	if err != nil {
		return prompts.Extraction{}, fmt.Errorf("extract concepts: %w", err)
	}
	var x prompts.Extraction
	if err := llm.Decode(raw, prompts.ExtractionSchema, &x); err != nil {
		return prompts.Extraction{}, fmt.Errorf("decode extraction: %w", err)
	}
	return x, nil
}
