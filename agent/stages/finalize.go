package stages

import (
	"context"
	"fmt"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/notify"
	"github.com/worameth/clinicdesk/records"
)

// HandleConfirm locks the appointment in or lets the patient back out.
// Backing out releases the reserved slot and ends the conversation.
func HandleConfirm(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error) {
	switch in.Intent {
	case contractx.IntentConfirm:
		appt, err := deps.Repo.GetAppointment(ctx, sess.AppointmentID)
		if err != nil {
			return Outcome{}, fmt.Errorf("confirm: %w", err)
		}
		appt.Status = records.StatusConfirmed
		if err := deps.Repo.UpdateAppointment(ctx, appt); err != nil {
			return Outcome{}, fmt.Errorf("confirm: %w", err)
		}

		subject, body := notify.ConfirmationEmail(appt)
		return Outcome{
			Next:  statex.StageDistribute,
			Reply: fmt.Sprintf("Confirmed! %s on %s at %s. A confirmation email is on its way.", appt.Doctor, appt.Date, appt.Start),
			Effects: []contractx.EffectRequest{{
				Type:          contractx.EffectSendEmail,
				AppointmentID: appt.ID,
				Recipient:     sess.Draft.Email,
				RecipientName: sess.Draft.Name,
				Subject:       subject,
				Body:          body,
			}},
		}, nil

	case contractx.IntentDecline, contractx.IntentCancel:
		if sess.AppointmentID != "" {
			if err := deps.Engine.Release(ctx, sess.AppointmentID, "declined at confirmation"); err != nil {
				return Outcome{}, fmt.Errorf("confirm release: %w", err)
			}
		}
		return Outcome{
			Next:  statex.StageAborted,
			Reply: "No problem, I've released that time. Reach out whenever you're ready to reschedule.",
		}, nil

	default:
		return Outcome{
			Next:  statex.StageConfirm,
			Reply: "Should I confirm the appointment? A simple yes or no works.",
		}, nil
	}
}

// HandleDistribute emails the intake form packet. Runs without user
// input and always advances.
func HandleDistribute(ctx context.Context, sess *statex.Session, _ contractx.ExtractResult, deps Deps) (Outcome, error) {
	appt, err := deps.Repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		return Outcome{}, fmt.Errorf("distribute: %w", err)
	}
	appt.FormSent = true
	if err := deps.Repo.UpdateAppointment(ctx, appt); err != nil {
		return Outcome{}, fmt.Errorf("distribute: %w", err)
	}

	subject, body := notify.IntakeFormEmail(appt)
	return Outcome{
		Next:  statex.StageRemind,
		Reply: "I've emailed your intake forms; please fill them out before your visit.",
		Effects: []contractx.EffectRequest{{
			Type:          contractx.EffectSendForm,
			AppointmentID: appt.ID,
			Recipient:     sess.Draft.Email,
			RecipientName: sess.Draft.Name,
			Subject:       subject,
			Body:          body,
		}},
	}, nil
}

// HandleRemind opens the reminder ticket and closes out the
// conversation. Runs without user input.
func HandleRemind(_ context.Context, sess *statex.Session, _ contractx.ExtractResult, _ Deps) (Outcome, error) {
	return Outcome{
		Next:  statex.StageDone,
		Reply: "We'll send you reminders as the date gets closer. See you soon!",
		Effects: []contractx.EffectRequest{{
			Type:          contractx.EffectScheduleReminders,
			AppointmentID: sess.AppointmentID,
			Recipient:     sess.Draft.Email,
			RecipientName: sess.Draft.Name,
		}},
	}, nil
}
