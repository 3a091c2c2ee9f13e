package stages

import (
	"context"
	"fmt"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
)

// HandleInsurance records coverage details and verifies the carrier
// against the office's accepted list. Verification failure flags the
// appointment, it never blocks it.
func HandleInsurance(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error) {
	mergeDraft(sess, in.Fields)

	if in.Intent == contractx.IntentUnclear && in.Clarification != "" {
		return Outcome{Next: statex.StageInsurance, Reply: in.Clarification}, nil
	}

	// A decline means self-pay or details withheld; proceed unverified.
	if in.Intent != contractx.IntentDecline {
		if sess.Draft.InsuranceCarrier == "" {
			return Outcome{
				Next:  statex.StageInsurance,
				Reply: "Which insurance carrier are you with? If you'd rather skip this, just say so.",
			}, nil
		}
		if sess.Draft.MemberID == "" {
			return Outcome{
				Next:  statex.StageInsurance,
				Reply: fmt.Sprintf("Got %s. What's your member ID (and group number, if you have it)?", sess.Draft.InsuranceCarrier),
			}, nil
		}
	}

	verified := CarrierVerified(sess.Draft.InsuranceCarrier, deps.Carriers) && sess.Draft.MemberID != ""

	if err := storeInsurance(ctx, sess, deps, verified); err != nil {
		return Outcome{}, err
	}

	reply := "Your insurance is verified."
	if !verified {
		reply = "I couldn't verify that coverage, so we'll note it for the front desk. " +
			"Your appointment stands either way."
	}
	return Outcome{
		Next:  statex.StageConfirm,
		Reply: reply + " " + confirmPrompt(ctx, sess, deps),
	}, nil
}

func storeInsurance(ctx context.Context, sess *statex.Session, deps Deps, verified bool) error {
	if sess.PatientID != "" && sess.Draft.InsuranceCarrier != "" {
		patient, err := deps.Repo.GetPatient(ctx, sess.PatientID)
		if err != nil {
			return fmt.Errorf("insurance: %w", err)
		}
		patient.InsuranceCarrier = sess.Draft.InsuranceCarrier
		patient.MemberID = sess.Draft.MemberID
		patient.GroupNumber = sess.Draft.GroupNumber
		if err := deps.Repo.UpdatePatient(ctx, patient); err != nil {
			return fmt.Errorf("insurance: %w", err)
		}
	}

	if sess.AppointmentID == "" {
		return nil
	}
	appt, err := deps.Repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		return fmt.Errorf("insurance: %w", err)
	}
	appt.InsuranceVerified = verified
	if err := deps.Repo.UpdateAppointment(ctx, appt); err != nil {
		return fmt.Errorf("insurance: %w", err)
	}
	return nil
}

func confirmPrompt(ctx context.Context, sess *statex.Session, deps Deps) string {
	appt, err := deps.Repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		return "Shall I confirm your appointment?"
	}
	return fmt.Sprintf("To confirm: %s with %s on %s at %s. Shall I lock it in?",
		sess.Draft.Name, appt.Doctor, appt.Date, appt.Start)
}
