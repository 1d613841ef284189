package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError is a single schema violation at a JSON path.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every schema violation in a payload.
type ValidationError struct {
	Errors []FieldError
}

func (ve *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for i, err := range ve.Errors {
		sb.WriteString(fmt.Sprintf(" %d. %s: %s;", i+1, err.Field, err.Message))
	}
	return sb.String()
}

var schemaCache sync.Map // schema source -> *gojsonschema.Schema

func compiledSchema(source string) (*gojsonschema.Schema, error) {
	if s, ok := schemaCache.Load(source); ok {
		return s.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	schemaCache.Store(source, s)
	return s, nil
}

// CleanJSONBlock removes markdown code block wrappers from JSON responses.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.Index(text, "\n"); idx >= 0 {
			firstLine := text[:idx]
			if len(firstLine) < 20 && !strings.Contains(firstLine, " ") && !strings.Contains(firstLine, "{") {
				text = text[idx+1:]
			}
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		return strings.TrimSpace(text)
	}

	return text
}

// ValidateJSON cleans raw and checks it against schema. It returns the
// cleaned document; any failure wraps ErrInvalidPayload.
func ValidateJSON(raw, schema string) (string, error) {
	doc := CleanJSONBlock(raw)
	if !json.Valid([]byte(doc)) {
		return "", fmt.Errorf("%w: not JSON", ErrInvalidPayload)
	}
	if schema == "" {
		return doc, nil
	}

	s, err := compiledSchema(schema)
	if err != nil {
		return "", err
	}
	result, err := s.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if result.Valid() {
		return doc, nil
	}

	ve := &ValidationError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		ve.Errors = append(ve.Errors, FieldError{Field: desc.Field(), Message: desc.Description()})
	}
	return "", fmt.Errorf("%w: %v", ErrInvalidPayload, ve)
}

// Decode validates raw against schema and unmarshals it into out.
func Decode(raw, schema string, out any) error {
	doc, err := ValidateJSON(raw, schema)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
