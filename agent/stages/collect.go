package stages

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/records"
)

// HandleCollect gathers contact details and the visit reason, then
// commits the patient row. New patients get a fresh sequential ID;
// returning patients have their stored contacts refreshed.
func HandleCollect(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error) {
	mergeDraft(sess, in.Fields)

	if in.Intent == contractx.IntentUnclear && in.Clarification != "" {
		return Outcome{Next: statex.StageCollect, Reply: in.Clarification}, nil
	}

	var missing []string
	if sess.Draft.Email == "" {
		missing = append(missing, "a valid email address")
	}
	if sess.Draft.Phone == "" {
		missing = append(missing, "a 10-digit phone number")
	}
	if sess.Draft.Reason == "" {
		missing = append(missing, "the reason for your visit")
	}
	if len(missing) > 0 {
		return Outcome{
			Next:  statex.StageCollect,
			Reply: fmt.Sprintf("Almost there. I still need %s.", strings.Join(missing, ", ")),
		}, nil
	}

	if err := commitPatient(ctx, sess, deps); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Next: statex.StageSchedule,
		Reply: "Great, your details are on file. Do you have a preferred doctor " +
			"or a date that works best for you?",
	}, nil
}

func commitPatient(ctx context.Context, sess *statex.Session, deps Deps) error {
	if sess.PatientID != "" {
		patient, err := deps.Repo.GetPatient(ctx, sess.PatientID)
		if err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		patient.Email = sess.Draft.Email
		patient.Phone = sess.Draft.Phone
		if sess.Draft.DoctorPreference != "" {
			patient.DoctorPreference = sess.Draft.DoctorPreference
		}
		patient.Type = records.PatientReturning
		if err := deps.Repo.UpdatePatient(ctx, patient); err != nil {
			return fmt.Errorf("collect: %w", err)
		}
		return nil
	}

	patient := &records.Patient{
		Name:             sess.Draft.Name,
		DOB:              sess.Draft.DOB,
		Email:            sess.Draft.Email,
		Phone:            sess.Draft.Phone,
		DoctorPreference: sess.Draft.DoctorPreference,
		Type:             records.PatientNew,
	}
	if err := deps.Repo.CreatePatient(ctx, patient); err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	sess.PatientID = patient.ID
	return nil
}
