package state

import (
	"errors"
	"testing"
	"time"
)

func TestNewSessionStartsAtGreeting(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	s := NewSession("sess-1", now)

	if s.Stage != StageGreeting {
		t.Fatalf("Stage = %s, want %s", s.Stage, StageGreeting)
	}
	if s.Version != 1 {
		t.Fatalf("Version = %d, want 1", s.Version)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", s.UpdatedAt, now)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestAdvanceForwardAndSameStage(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := NewSession("sess-1", now)

	if err := s.Advance(StageIdentify, now); err != nil {
		t.Fatalf("Advance(identify) error = %v", err)
	}
	// Looping on the same stage is allowed while input is missing.
	if err := s.Advance(StageIdentify, now); err != nil {
		t.Fatalf("Advance(identify) again error = %v", err)
	}
	if err := s.Advance(StageSchedule, now); err != nil {
		t.Fatalf("Advance(schedule) error = %v", err)
	}
}

func TestAdvanceRejectsBackwardMove(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	s := NewSession("sess-1", now)
	if err := s.Advance(StageSchedule, now); err != nil {
		t.Fatalf("Advance(schedule) error = %v", err)
	}

	err := s.Advance(StageIdentify, now)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Advance backward error = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceRejectsUnknownStage(t *testing.T) {
	t.Parallel()

	s := NewSession("sess-1", time.Now().UTC())
	err := s.Advance(Stage("limbo"), time.Now().UTC())
	if !errors.Is(err, ErrUnknownStage) {
		t.Fatalf("Advance(limbo) error = %v, want ErrUnknownStage", err)
	}
}

func TestAbortFromAnyNonTerminalStage(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	for _, stage := range []Stage{StageGreeting, StageCollect, StageConfirm, StageRemind} {
		s := NewSession("sess-1", now)
		s.Stage = stage
		if err := s.Abort(now); err != nil {
			t.Fatalf("Abort from %s error = %v", stage, err)
		}
		if s.Stage != StageAborted {
			t.Fatalf("Stage after abort = %s, want %s", s.Stage, StageAborted)
		}
	}
}

func TestTerminalStagesAreFrozen(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	for _, stage := range []Stage{StageDone, StageAborted} {
		s := NewSession("sess-1", now)
		s.Stage = stage

		if err := s.Advance(StageDone, now); !errors.Is(err, ErrTerminalSession) {
			t.Fatalf("Advance from %s error = %v, want ErrTerminalSession", stage, err)
		}
		if err := s.Abort(now); !errors.Is(err, ErrTerminalSession) {
			t.Fatalf("Abort from %s error = %v, want ErrTerminalSession", stage, err)
		}
	}
}

func TestRecordTurnAndClearOffers(t *testing.T) {
	t.Parallel()

	s := NewSession("sess-1", time.Now().UTC())
	s.RecordTurn("patient", "hi, I need an appointment")
	s.RecordTurn("assistant", "sure, what's your name?")
	if len(s.Transcript) != 2 {
		t.Fatalf("Transcript length = %d, want 2", len(s.Transcript))
	}
	if s.Transcript[0].Role != "patient" {
		t.Fatalf("Transcript[0].Role = %s, want patient", s.Transcript[0].Role)
	}

	s.OfferedSlots = []OfferedSlot{{SlotID: "s1"}, {SlotID: "s2"}}
	s.ClearOffers()
	if s.OfferedSlots != nil {
		t.Fatalf("OfferedSlots = %v, want nil", s.OfferedSlots)
	}
}

func TestValidateRejectsBadSessions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(*Session)
	}{
		{"empty id", func(s *Session) { s.SessionID = "" }},
		{"unknown stage", func(s *Session) { s.Stage = "limbo" }},
		{"zero version", func(s *Session) { s.Version = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession("sess-1", time.Now().UTC())
			tc.mut(s)
			if err := s.Validate(); err == nil {
				t.Fatal("Validate() = nil, want error")
			}
		})
	}
}
