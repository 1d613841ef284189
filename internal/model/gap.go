package model

import "time"

// GapKind classifies a detected deficiency.
type GapKind string

const (
	GapKnowledge        GapKind = "knowledge-gap"
	GapExplanation      GapKind = "explanation-gap"
	GapDepth            GapKind = "depth-gap"
	GapApplication      GapKind = "application-gap"
	GapResumeMissing    GapKind = "resume-missing"
	GapInterviewMissing GapKind = "interview-missing"
)

// GapSeverity ranks how much a gap matters.
type GapSeverity string

const (
	SeverityCritical GapSeverity = "critical"
	SeverityHigh     GapSeverity = "high"
	SeverityMedium   GapSeverity = "medium"
	SeverityLow      GapSeverity = "low"
)

// Rank orders severities: critical=4 ... low=1, unknown=0.
func (s GapSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b GapSeverity) GapSeverity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// GapStatus is the lifecycle state of a gap.
type GapStatus string

const (
	GapIdentified GapStatus = "identified"
	GapInProgress GapStatus = "in-progress"
	GapImproved   GapStatus = "improved"
	GapClosed     GapStatus = "closed"
)

// Open reports whether the gap still counts against the user.
func (s GapStatus) Open() bool {
	return s == GapIdentified || s == GapInProgress
}

// JDEvidence records whether the job lists the skill.
type JDEvidence struct {
	Required  bool `json:"required,omitempty"`
	Preferred bool `json:"preferred,omitempty"`
}

// Evidence collects where a gap was observed.
type Evidence struct {
	FromResume    bool        `json:"from_resume,omitempty"`
	FromJD        *JDEvidence `json:"from_jd,omitempty"`
	FromInterview []string    `json:"from_interview,omitempty"`
}

// Gap is a per-user deficiency that outlives sessions.
type Gap struct {
	ID         string      `json:"id" db:"id"`
	UserID     string      `json:"user_id" db:"user_id"`
	Skill      string      `json:"skill" db:"skill"`
	Kind       GapKind     `json:"kind" db:"kind"`
	Severity   GapSeverity `json:"severity" db:"severity"`
	Evidence   Evidence    `json:"evidence" db:"-"`
	Status     GapStatus   `json:"status" db:"status"`
	Priority   int         `json:"priority" db:"priority"`
	DetectedAt time.Time   `json:"detected_at" db:"detected_at"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
}

// IdentifiedGap is the session-local, priority-ordered view of a gap.
type IdentifiedGap struct {
	Skill    string      `json:"skill"`
	Kind     GapKind     `json:"kind"`
	Severity GapSeverity `json:"severity"`
	Priority int         `json:"priority"`
}
