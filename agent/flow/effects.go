package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/forms"
	"github.com/worameth/clinicdesk/notify"
	"github.com/worameth/clinicdesk/records"
)

// EffectExecutor turns queued effect requests into collaborator calls.
// Every failure is wrapped as ErrCollaborator; retries are the reminder
// scheduler's business, not ours.
type EffectExecutor struct {
	Repo      records.Repository
	Sender    notify.EmailSender
	Renderer  forms.Renderer
	Scheduler *notify.Scheduler

	AdminEmail string
	Now        func() time.Time
}

func (e *EffectExecutor) Execute(ctx context.Context, sess *statex.Session, eff contractx.EffectRequest) error {
	switch eff.Type {
	case contractx.EffectSendEmail:
		return e.sendEmail(ctx, eff, nil)

	case contractx.EffectSendForm:
		return e.sendForm(ctx, sess, eff)

	case contractx.EffectOfferAlternatives:
		// Alternatives ride in the reply itself; the effect exists for
		// the audit trail.
		log.Info().
			Str("session_id", sess.SessionID).
			Int("count", len(eff.Alternatives)).
			Str("reason", eff.Reason).
			Msg("alternatives offered")
		return nil

	case contractx.EffectEscalateHuman:
		return e.escalate(ctx, sess, eff)

	case contractx.EffectScheduleReminders:
		now := time.Now
		if e.Now != nil {
			now = e.Now
		}
		if err := e.Scheduler.Open(ctx, eff.AppointmentID, now()); err != nil {
			return fmt.Errorf("%w: %v", contractx.ErrCollaborator, err)
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown effect type %q", contractx.ErrValidation, eff.Type)
	}
}

func (e *EffectExecutor) sendEmail(ctx context.Context, eff contractx.EffectRequest, attachments []notify.Attachment) error {
	err := e.Sender.Send(ctx, notify.Email{
		To:          eff.Recipient,
		ToName:      eff.RecipientName,
		Subject:     eff.Subject,
		Body:        eff.Body,
		Attachments: attachments,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrCollaborator, err)
	}
	return nil
}

func (e *EffectExecutor) sendForm(ctx context.Context, sess *statex.Session, eff contractx.EffectRequest) error {
	patient, err := e.Repo.GetPatient(ctx, sess.PatientID)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrCollaborator, err)
	}
	appt, err := e.Repo.GetAppointment(ctx, eff.AppointmentID)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrCollaborator, err)
	}

	pdf, err := e.Renderer.IntakeForm(patient, appt)
	if err != nil {
		return fmt.Errorf("%w: render intake form: %v", contractx.ErrCollaborator, err)
	}

	return e.sendEmail(ctx, eff, []notify.Attachment{{
		Filename:    "New Patient Intake Form.pdf",
		ContentType: "application/pdf",
		Data:        pdf,
	}})
}

func (e *EffectExecutor) escalate(ctx context.Context, sess *statex.Session, eff contractx.EffectRequest) error {
	if e.AdminEmail == "" {
		log.Warn().Str("session_id", sess.SessionID).Str("reason", eff.Reason).
			Msg("escalation requested but no admin email configured")
		return nil
	}
	subject, body := notify.AdminAlertEmail(eff.Reason,
		fmt.Sprintf("session %s, patient %q", sess.SessionID, sess.Draft.Name))
	err := e.Sender.Send(ctx, notify.Email{
		To:      e.AdminEmail,
		ToName:  "Office Admin",
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrCollaborator, err)
	}
	return nil
}
