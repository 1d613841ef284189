package model

import "time"

// EngineConfig holds runtime interview parameters set via CLI flags.
type EngineConfig struct {
	MaxTurns             int           // hard stop, turn 15 by default
	MinTurns             int           // never stop before this many closed turns
	MaxFollowups         int           // consecutive follow-ups allowed on one root question
	ReinforceProbability float64       // chance of revisiting a struggling topic
	IdleTimeout          time.Duration // inactivity before a session is terminated
	CacheBucketCap       int           // questions kept per (focus, topic, difficulty)
	Language             string        // feedback language (en, ru)
}

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxTurns:             15,
		MinTurns:             5,
		MaxFollowups:         2,
		ReinforceProbability: 0.35,
		IdleTimeout:          24 * time.Hour,
		CacheBucketCap:       20,
		Language:             "en",
	}
}

// QuestionImport is used for loading curated questions from JSON.
type QuestionImport struct {
	Text       string             `json:"text" validate:"required"`
	Kind       QuestionKind       `json:"kind" validate:"required"`
	Difficulty Difficulty         `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Topic      string             `json:"topic" validate:"required"`
	FocusKind  FocusKind          `json:"focus_kind"`
	Expected   ExpectedComponents `json:"expected"`
}
