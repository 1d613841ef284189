package prompts

// QuestionSchema validates generated questions.
const QuestionSchema = `{
  "type": "object",
  "required": ["text", "requiredConcepts"],
  "properties": {
    "text": {"type": "string", "minLength": 10},
    "requiredConcepts": {"type": "array", "items": {"type": "string"}},
    "optionalConcepts": {"type": "array", "items": {"type": "string"}},
    "depthIndicators": {"type": "array", "items": {"type": "string"}},
    "suggestedFollowUps": {"type": "array", "items": {"type": "string"}}
  }
}`

// FollowUpSchema validates generated follow-up questions.
const FollowUpSchema = `{
  "type": "object",
  "required": ["text"],
  "properties": {
    "text": {"type": "string", "minLength": 5}
  }
}`

// ExtractionSchema validates concept extraction output.
const ExtractionSchema = `{
  "type": "object",
  "required": ["concepts"],
  "properties": {
    "concepts": {"type": "array", "items": {"type": "string"}},
    "technicalTerms": {"type": "array", "items": {"type": "string"}},
    "examples": {"type": "array", "items": {"type": "string"}},
    "comparisons": {"type": "array", "items": {"type": "string"}}
  }
}`

// GeneratedQuestion is the oracle's reply to a question prompt.
type GeneratedQuestion struct {
	Text               string   `json:"text"`
	RequiredConcepts   []string `json:"requiredConcepts"`
	OptionalConcepts   []string `json:"optionalConcepts"`
	DepthIndicators    []string `json:"depthIndicators"`
	SuggestedFollowUps []string `json:"suggestedFollowUps"`
}

// GeneratedFollowUp is the oracle's reply to a follow-up prompt.
type GeneratedFollowUp struct {
	Text string `json:"text"`
}

// Extraction is the oracle's reply to an extraction prompt.
type Extraction struct {
	Concepts       []string `json:"concepts"`
	TechnicalTerms []string `json:"technicalTerms"`
	Examples       []string `json:"examples"`
	Comparisons    []string `json:"comparisons"`
}
