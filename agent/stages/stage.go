package stages

import (
	"context"
	"fmt"
	"time"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/booking"
	"github.com/worameth/clinicdesk/records"
)

// Booker is the slice of the booking engine the stage handlers use.
type Booker interface {
	FindAvailable(ctx context.Context, doctor string, r records.DateRange) ([]records.AvailabilitySlot, error)
	Reserve(ctx context.Context, doctor, slotID string, req booking.Request) (*records.Appointment, error)
	Release(ctx context.Context, appointmentID, reason string) error
	SuggestAlternatives(ctx context.Context, doctors []string, r records.DateRange, k int) ([]records.AvailabilitySlot, error)
}

// Deps carries the collaborators and policy knobs handlers may touch.
// Handlers never send anything themselves; side effects go through
// Outcome.Effects.
type Deps struct {
	Repo   records.Repository
	Engine Booker

	// Carriers the office can verify against.
	Carriers []string
	// MaxAlternativeOffers bounds how many alternative rounds Schedule
	// runs before escalating to a human.
	MaxAlternativeOffers int
	// SearchDays is how far ahead Schedule looks for free slots.
	SearchDays int
	// OfferCount is how many slots one offer round presents.
	OfferCount int

	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) maxOffers() int {
	if d.MaxAlternativeOffers > 0 {
		return d.MaxAlternativeOffers
	}
	return 3
}

func (d Deps) searchDays() int {
	if d.SearchDays > 0 {
		return d.SearchDays
	}
	return 14
}

func (d Deps) offerCount() int {
	if d.OfferCount > 0 {
		return d.OfferCount
	}
	return 3
}

// Outcome is what a handler produced for one turn: the stage to move to,
// the reply text, and any side effects for the flow to execute.
type Outcome struct {
	Next    statex.Stage
	Reply   string
	Effects []contractx.EffectRequest
}

// Handler processes one user turn for one stage. Handlers are pure over
// (session, extract result, deps); they mutate only the session.
type Handler func(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error)

// ForStage resolves the handler for a stage. Terminal stages have none.
func ForStage(stage statex.Stage) (Handler, error) {
	switch stage {
	case statex.StageGreeting:
		return HandleGreeting, nil
	case statex.StageIdentify:
		return HandleIdentify, nil
	case statex.StageCollect:
		return HandleCollect, nil
	case statex.StageSchedule:
		return HandleSchedule, nil
	case statex.StageInsurance:
		return HandleInsurance, nil
	case statex.StageConfirm:
		return HandleConfirm, nil
	case statex.StageDistribute:
		return HandleDistribute, nil
	case statex.StageRemind:
		return HandleRemind, nil
	default:
		return nil, fmt.Errorf("%w: no handler for stage %s", contractx.ErrValidation, stage)
	}
}

// AutoRun reports whether a stage runs without waiting for user input.
// The flow chains these after the preceding stage advances.
func AutoRun(stage statex.Stage) bool {
	return stage == statex.StageDistribute || stage == statex.StageRemind
}

// mergeDraft folds extracted fields into the session draft. Contact
// fields are normalized; invalid values are skipped so the stage can ask
// again instead of storing garbage.
func mergeDraft(sess *statex.Session, fields map[string]string) {
	for key, value := range fields {
		switch key {
		case contractx.FieldName:
			sess.Draft.Name = value
		case contractx.FieldDOB:
			sess.Draft.DOB = value
		case contractx.FieldEmail:
			if cleaned, ok := CleanEmail(value); ok {
				sess.Draft.Email = cleaned
			}
		case contractx.FieldPhone:
			if cleaned, ok := CleanPhone(value); ok {
				sess.Draft.Phone = cleaned
			}
		case contractx.FieldDoctorPreference:
			sess.Draft.DoctorPreference = value
		case contractx.FieldReason:
			sess.Draft.Reason = value
		case contractx.FieldInsuranceCarrier:
			sess.Draft.InsuranceCarrier = value
		case contractx.FieldMemberID:
			sess.Draft.MemberID = value
		case contractx.FieldGroupNumber:
			sess.Draft.GroupNumber = value
		}
	}
}
