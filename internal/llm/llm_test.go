package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type scriptedOracle struct {
	mu      sync.Mutex
	replies []reply
	calls   int
}

type reply struct {
	text string
	err  error
}

func (s *scriptedOracle) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.replies) == 0 {
		return "", errors.New("unexpected call")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func newTestReliable(inner Oracle, retries int) *Reliable {
	r := NewReliable(inner, Config{Timeout: time.Second, MaxRetries: retries, RetryBaseDelay: time.Millisecond})
	r.wait = func(context.Context, time.Duration) error { return nil }
	return r
}

const conceptSchema = `{
  "type": "object",
  "required": ["concepts"],
  "properties": {"concepts": {"type": "array", "items": {"type": "string"}}}
}`

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"language tag", "```javascript\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding space", "  {\"a\":1}\n", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanJSONBlock(tt.in); got != tt.want {
				t.Errorf("CleanJSONBlock() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		doc, err := ValidateJSON("```json\n{\"concepts\":[\"indexing\"]}\n```", conceptSchema)
		if err != nil {
			t.Fatalf("ValidateJSON: %v", err)
		}
		if doc != `{"concepts":["indexing"]}` {
			t.Errorf("unexpected cleaned doc %q", doc)
		}
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ValidateJSON("sure! here you go", conceptSchema)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("expected ErrInvalidPayload, got %v", err)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		_, err := ValidateJSON(`{"concepts":"indexing"}`, conceptSchema)
		if !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("expected ErrInvalidPayload, got %v", err)
		}
		if !strings.Contains(err.Error(), "concepts") {
			t.Errorf("error should name the field: %v", err)
		}
	})
}

func TestDecode(t *testing.T) {
	var out struct {
		Concepts []string `json:"concepts"`
	}
	if err := Decode(`{"concepts":["a","b"]}`, conceptSchema, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(out.Concepts) != 2 {
		t.Errorf("expected 2 concepts, got %v", out.Concepts)
	}
}

func TestReliableRetriesOnce(t *testing.T) {
	inner := &scriptedOracle{replies: []reply{
		{err: ErrUnavailable},
		{text: "ok"},
	}}
	r := newTestReliable(inner, 1)

	got, err := r.Generate(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "ok" {
		t.Errorf("Generate() = %q, want ok", got)
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 calls, got %d", inner.calls)
	}
}

func TestReliableGivesUp(t *testing.T) {
	inner := &scriptedOracle{replies: []reply{
		{err: errors.New("503")},
		{err: errors.New("503")},
		{text: "never reached"},
	}}
	r := newTestReliable(inner, 1)

	_, err := r.Generate(context.Background(), "prompt", Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("expected exactly 2 calls, got %d", inner.calls)
	}
}

func TestReliableRetriesInvalidPayload(t *testing.T) {
	inner := &scriptedOracle{replies: []reply{
		{text: "not json"},
		{text: `{"concepts":["x"]}`},
	}}
	r := newTestReliable(inner, 1)

	got, err := r.Generate(context.Background(), "prompt", Options{JSONSchema: conceptSchema})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"concepts":["x"]}` {
		t.Errorf("unexpected payload %q", got)
	}

	inner = &scriptedOracle{replies: []reply{{text: "nope"}, {text: "still nope"}}}
	r = newTestReliable(inner, 1)
	if _, err := r.Generate(context.Background(), "prompt", Options{JSONSchema: conceptSchema}); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	r := NewReliable(Offline{}, Config{RetryBaseDelay: 100 * time.Millisecond, MaxRetries: 3})
	for attempt := 1; attempt <= 3; attempt++ {
		base := 100 * time.Millisecond << (attempt - 1)
		d := r.backoff(attempt)
		if d < base || d > base+base/2 {
			t.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, d, base, base+base/2)
		}
	}
}

func TestOfflineFails(t *testing.T) {
	_, err := Offline{}.Generate(context.Background(), "p", Options{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}

func TestTruncateForLog(t *testing.T) {
	if got := TruncateForLog("  hello world ", 5); got != "hello..." {
		t.Errorf("TruncateForLog() = %q", got)
	}
	if got := TruncateForLog("hi", 5); got != "hi" {
		t.Errorf("TruncateForLog() = %q", got)
	}
	if got := TruncateForLog("hi", 0); got != "" {
		t.Errorf("TruncateForLog() = %q", got)
	}
}
