package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/records"
)

// HandleGreeting opens the conversation. Anything the patient already
// volunteered is captured before the identity ask.
func HandleGreeting(_ context.Context, sess *statex.Session, in contractx.ExtractResult, _ Deps) (Outcome, error) {
	mergeDraft(sess, in.Fields)

	if sess.Draft.Name != "" && sess.Draft.DOB != "" {
		// Identity arrived in the opening message; skip the ask.
		return Outcome{
			Next:  statex.StageIdentify,
			Reply: fmt.Sprintf("Thanks %s, one moment while I look up your record.", sess.Draft.Name),
		}, nil
	}

	return Outcome{
		Next: statex.StageIdentify,
		Reply: "Hello! I can help you schedule an appointment with our office. " +
			"Could I get your full name and date of birth?",
	}, nil
}

// HandleIdentify resolves the patient against the record store. A hit
// prefills the draft from the stored row; a miss starts a fresh intake.
func HandleIdentify(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error) {
	mergeDraft(sess, in.Fields)

	if in.Intent == contractx.IntentUnclear && in.Clarification != "" {
		return Outcome{Next: statex.StageIdentify, Reply: in.Clarification}, nil
	}

	var missing []string
	if sess.Draft.Name == "" {
		missing = append(missing, "your full name")
	}
	if sess.Draft.DOB == "" {
		missing = append(missing, "your date of birth")
	}
	if len(missing) > 0 {
		return Outcome{
			Next:  statex.StageIdentify,
			Reply: fmt.Sprintf("I still need %s to find your record.", strings.Join(missing, " and ")),
		}, nil
	}

	patient, err := deps.Repo.FindPatient(ctx, sess.Draft.Name, sess.Draft.DOB)
	switch {
	case err == nil:
		sess.PatientID = patient.ID
		sess.Returning = true
		prefillDraft(&sess.Draft, patient)
		return Outcome{
			Next: statex.StageCollect,
			Reply: fmt.Sprintf("Welcome back, %s! I found your record. "+
				"Are your contact details still current, and what brings you in?", patient.Name),
		}, nil
	case errors.Is(err, records.ErrPatientNotFound):
		sess.Returning = false
		return Outcome{
			Next: statex.StageCollect,
			Reply: fmt.Sprintf("I don't see a record for %s yet, so let's set one up. "+
				"Could I get your email, phone number, and the reason for your visit?", sess.Draft.Name),
		}, nil
	default:
		return Outcome{}, fmt.Errorf("identify: %w", err)
	}
}

// prefillDraft copies stored values into empty draft fields only; what
// the patient said this conversation wins over the record.
func prefillDraft(d *statex.Draft, p *records.Patient) {
	if d.Email == "" {
		d.Email = p.Email
	}
	if d.Phone == "" {
		d.Phone = p.Phone
	}
	if d.DoctorPreference == "" {
		d.DoctorPreference = p.DoctorPreference
	}
	if d.InsuranceCarrier == "" {
		d.InsuranceCarrier = p.InsuranceCarrier
	}
	if d.MemberID == "" {
		d.MemberID = p.MemberID
	}
	if d.GroupNumber == "" {
		d.GroupNumber = p.GroupNumber
	}
}
