package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/interviewer/internal/model"
)

// Request types accepted from clients.
const (
	TypeStart        = "start"
	TypeSubmitAnswer = "submit_answer"
	TypeRequestHint  = "request_hint"
	TypeGetStatus    = "get_status"
	TypePause        = "pause"
	TypeResume       = "resume"
	TypeTyping       = "typing"
	TypeEnd          = "end"
)

// Reply types that are not session events.
const (
	TypeAck   = "ack"
	TypeError = "error"
)

// Error codes produced by the gateway itself. Engine failures carry the
// engine's own codes.
const (
	CodeInvalidRequest = "invalid_request"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

// Request is the inbound envelope.
type Request struct {
	Type    string          `json:"type" validate:"required,oneof=start submit_answer request_hint get_status pause resume typing end"`
	ID      string          `json:"id,omitempty" validate:"max=128"`
	Payload json.RawMessage `json:"payload"`
}

// StartPayload opens a new session.
type StartPayload struct {
	UserID   string              `json:"userId" validate:"required,max=128"`
	ResumeID string              `json:"resumeId" validate:"required,max=128"`
	JobID    string              `json:"jobId,omitempty" validate:"max=128"`
	Kind     model.InterviewKind `json:"kind,omitempty" validate:"omitempty,oneof=technical behavioral mixed system-design"`
}

// AnswerPayload submits the answer to the pending turn.
type AnswerPayload struct {
	SessionID    string `json:"sessionId" validate:"required"`
	TurnNumber   int    `json:"turnNumber" validate:"gte=0"`
	Text         string `json:"text" validate:"required,max=20000"`
	TimeSpentSec int    `json:"timeSpentSec" validate:"gte=0"`
	MediaRef     string `json:"mediaRef,omitempty" validate:"max=512"`
}

// SessionPayload addresses an existing session.
type SessionPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// TypingPayload reports client typing activity.
type TypingPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	Typing    bool   `json:"typing"`
}

// Message is the outbound envelope for events, acks and errors.
type Message struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Ack is the payload of an ack reply.
type Ack struct {
	SessionID string             `json:"sessionId,omitempty"`
	Status    *model.StateUpdate `json:"status,omitempty"`
}

func eventMessage(ev model.Event) Message {
	return Message{
		Type:      string(ev.Type),
		SessionID: ev.SessionID,
		Payload:   ev.Data,
		Timestamp: ev.At,
	}
}

// requestError is a client mistake detected before reaching the engine.
type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &requestError{code: CodeInvalidRequest, msg: fmt.Sprintf(format, args...)}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func decodeRequest(v *validator.Validate, data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, invalid("malformed request: %v", err)
	}
	if err := check(v, req); err != nil {
		return req, err
	}
	return req, nil
}

// decodePayload unmarshals and validates a request payload.
func decodePayload(v *validator.Validate, req Request, dst any) error {
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		return invalid("%s: payload is required", req.Type)
	}
	if err := json.Unmarshal(req.Payload, dst); err != nil {
		return invalid("%s: malformed payload: %v", req.Type, err)
	}
	return check(v, dst)
}

func check(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return invalid("validation error: %s - %s", first.Field(), first.Tag())
	}
	return invalid("validation error: %v", err)
}
