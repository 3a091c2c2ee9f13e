package state

import (
	"errors"
	"fmt"
	"time"
)

// Stage is the conversation position. One conversation moves forward
// through the pipeline; Aborted is reachable from every non-terminal
// stage.
type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageIdentify   Stage = "identify"
	StageCollect    Stage = "collect"
	StageSchedule   Stage = "schedule"
	StageInsurance  Stage = "insurance"
	StageConfirm    Stage = "confirm"
	StageDistribute Stage = "distribute"
	StageRemind     Stage = "remind"
	StageDone       Stage = "done"
	StageAborted    Stage = "aborted"
)

var stageOrder = map[Stage]int{
	StageGreeting:   0,
	StageIdentify:   1,
	StageCollect:    2,
	StageSchedule:   3,
	StageInsurance:  4,
	StageConfirm:    5,
	StageDistribute: 6,
	StageRemind:     7,
	StageDone:       8,
	StageAborted:    9,
}

func (s Stage) Known() bool {
	_, ok := stageOrder[s]
	return ok
}

func (s Stage) Terminal() bool {
	return s == StageDone || s == StageAborted
}

// Draft accumulates patient fields across turns until the Collect stage
// commits them to the record store.
type Draft struct {
	Name             string `json:"name,omitempty"`
	DOB              string `json:"dob,omitempty"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	DoctorPreference string `json:"doctor_preference,omitempty"`
	Reason           string `json:"reason,omitempty"`
	InsuranceCarrier string `json:"insurance_carrier,omitempty"`
	MemberID         string `json:"member_id,omitempty"`
	GroupNumber      string `json:"group_number,omitempty"`
}

// OfferedSlot is a slot the assistant proposed in a previous turn. Kept
// on the session so "the second one" resolves on the next turn.
type OfferedSlot struct {
	SlotID string `json:"slot_id"`
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Start  string `json:"start"`
}

type Turn struct {
	Role    string `json:"role"` // "patient" or "assistant"
	Content string `json:"content"`
}

// Session is the persistent source of truth for one conversation.
// Single-threaded per conversation; the store serializes access.
type Session struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`

	PatientID string `json:"patient_id,omitempty"`
	Returning bool   `json:"returning,omitempty"`
	Draft     Draft  `json:"draft"`

	OfferedSlots     []OfferedSlot `json:"offered_slots,omitempty"`
	ScheduleAttempts int           `json:"schedule_attempts,omitempty"`
	ReservedSlotID   string        `json:"reserved_slot_id,omitempty"`
	AppointmentID    string        `json:"appointment_id,omitempty"`
	Escalated        bool          `json:"escalated,omitempty"`

	Transcript []Turn `json:"transcript,omitempty"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	ErrInvalidSession    = errors.New("session id is empty")
	ErrUnknownStage      = errors.New("unknown stage")
	ErrTerminalSession   = errors.New("session already terminal")
	ErrInvalidTransition = errors.New("invalid stage transition")
)

func NewSession(sessionID string, now time.Time) *Session {
	return &Session{
		SessionID: sessionID,
		Stage:     StageGreeting,
		Version:   1,
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Advance moves the session to next. Backward moves and moves out of a
// terminal stage are rejected; staying on the same stage is allowed so
// a handler can loop while it waits for missing input.
func (s *Session) Advance(next Stage, now time.Time) error {
	if !next.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownStage, next)
	}
	if s.Stage.Terminal() {
		return fmt.Errorf("%w: stage=%s", ErrTerminalSession, s.Stage)
	}
	if next != StageAborted && stageOrder[next] < stageOrder[s.Stage] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Stage, next)
	}
	s.Stage = next
	s.Touch(now)
	return nil
}

// Abort force-terminates from any non-terminal stage.
func (s *Session) Abort(now time.Time) error {
	if s.Stage.Terminal() {
		return fmt.Errorf("%w: stage=%s", ErrTerminalSession, s.Stage)
	}
	s.Stage = StageAborted
	s.Touch(now)
	return nil
}

// RecordTurn appends one exchange to the transcript.
func (s *Session) RecordTurn(role, content string) {
	s.Transcript = append(s.Transcript, Turn{Role: role, Content: content})
}

// ClearOffers drops pending slot offers, used after a reservation lands
// or the patient walks away from the proposed times.
func (s *Session) ClearOffers() {
	s.OfferedSlots = nil
}

func (s *Session) Validate() error {
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	if !s.Stage.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownStage, s.Stage)
	}
	if s.Version <= 0 {
		return fmt.Errorf("session %s has non-positive version %d", s.SessionID, s.Version)
	}
	return nil
}
