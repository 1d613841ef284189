// Package prompts renders the oracle prompts from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxAnswerRunes = 10000

// QuestionData holds template data for question generation.
type QuestionData struct {
	TargetRole       string
	Focus            string
	Topic            string
	Difficulty       string
	Kind             string
	Severity         string
	Experience       []string // at most two roles
	Responsibilities []string // at most three
}

// FollowUpData holds template data for follow-up generation.
type FollowUpData struct {
	Topic    string
	Question string
	Answer   string
	Missing  []string
}

// ExtractData holds template data for concept extraction.
type ExtractData struct {
	Question string
	Answer   string
}

// Set is a parsed collection of prompt templates.
type Set struct {
	question *template.Template
	followup *template.Template
	extract  *template.Template
}

// Load parses the question, followup and extract templates from fsys.
func Load(fsys fs.FS) (*Set, error) {
	funcs := template.FuncMap{"join": strings.Join}
	parse := func(name string) (*template.Template, error) {
		file := "templates/" + name + ".txt"
		content, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read prompt file %s: %w", file, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %s: %w", file, err)
		}
		return tmpl, nil
	}

	var s Set
	var err error
	if s.question, err = parse("question"); err != nil {
		return nil, err
	}
	if s.followup, err = parse("followup"); err != nil {
		return nil, err
	}
	if s.extract, err = parse("extract"); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the templates compiled into the binary.
func Default() (*Set, error) {
	return Load(templateFS)
}

// Question renders a question generation prompt.
func (s *Set) Question(d QuestionData) (string, error) {
	if len(d.Experience) > 2 {
		d.Experience = d.Experience[:2]
	}
	if len(d.Responsibilities) > 3 {
		d.Responsibilities = d.Responsibilities[:3]
	}
	return render(s.question, d)
}

// FollowUp renders a follow-up prompt. The answer is sanitized.
func (s *Set) FollowUp(d FollowUpData) (string, error) {
	d.Answer = sanitizeAnswer(d.Answer)
	return render(s.followup, d)
}

// Extract renders an extraction prompt. The answer is sanitized.
func (s *Set) Extract(d ExtractData) (string, error) {
	d.Answer = sanitizeAnswer(d.Answer)
	return render(s.extract, d)
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
