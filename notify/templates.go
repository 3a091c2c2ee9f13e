package notify

import (
	"fmt"

	"github.com/worameth/clinicdesk/records"
)

const signature = "Thank you,\nMedical Office Staff"

// ConfirmationEmail is sent when the patient confirms the booking.
func ConfirmationEmail(appt *records.Appointment) (subject, body string) {
	subject = fmt.Sprintf("Appointment Confirmation: %s at %s", appt.Date, appt.Start)
	body = fmt.Sprintf(
		"Dear %s,\n\n"+
			"This email confirms your appointment with %s on %s at %s.\n\n"+
			"Please arrive 15 minutes before your scheduled time to complete any additional paperwork.\n\n"+
			"If you need to reschedule or cancel, please contact us at least 24 hours in advance.\n\n%s",
		appt.PatientName, appt.Doctor, appt.Date, appt.Start, signature)
	return subject, body
}

// IntakeFormEmail accompanies the PDF intake packet.
func IntakeFormEmail(appt *records.Appointment) (subject, body string) {
	subject = fmt.Sprintf("Intake Form for Your Appointment on %s", appt.Date)
	body = fmt.Sprintf(
		"Dear %s,\n\n"+
			"Please complete the attached New Patient Intake Form and bring it with you to your "+
			"appointment with %s on %s at %s. This form contains important information about your "+
			"medical history and current health status that will help us provide you with the best "+
			"possible care.\n\n%s",
		appt.PatientName, appt.Doctor, appt.Date, appt.Start, signature)
	return subject, body
}

// ReminderEmail renders the reminder for an escalation level. Level 0 is
// a friendly nudge, level 1 asks for form completion and confirmation,
// level 2 is the final urgent check. confirmBaseURL hosts the one-click
// confirm/cancel endpoints.
func ReminderEmail(level int, appt *records.Appointment, confirmBaseURL string) (subject, body string) {
	confirmLink := fmt.Sprintf("%s/appointments/%s/confirm", confirmBaseURL, appt.ID)
	cancelLink := fmt.Sprintf("%s/appointments/%s/cancel", confirmBaseURL, appt.ID)

	switch {
	case level <= 0:
		subject = fmt.Sprintf("Reminder: Upcoming Appointment with %s", appt.Doctor)
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"This is a friendly reminder about your upcoming appointment with %s on %s at %s.\n\n"+
				"Please make sure to arrive 15 minutes early for your appointment.\n\n"+
				"If you need to reschedule or cancel, please contact us at least 24 hours in advance.\n\n%s",
			appt.PatientName, appt.Doctor, appt.Date, appt.Start, signature)
	case level == 1:
		subject = fmt.Sprintf("Action Required: Complete Forms & Confirm Appointment with %s", appt.Doctor)
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"Your appointment with %s on %s at %s is approaching.\n\n"+
				"IMPORTANT: Please complete your intake forms if you haven't already done so.\n\n"+
				"Please confirm your appointment:\n\n"+
				"CONFIRM: %s\nCANCEL: %s\n\n"+
				"If you need to reschedule, please contact us at least 24 hours in advance.\n\n%s",
			appt.PatientName, appt.Doctor, appt.Date, appt.Start, confirmLink, cancelLink, signature)
	default:
		subject = fmt.Sprintf("Final Reminder: Appointment with %s - Please Confirm", appt.Doctor)
		body = fmt.Sprintf(
			"Dear %s,\n\n"+
				"This is your final reminder about your appointment with %s on %s at %s.\n\n"+
				"URGENT: Please confirm your attendance:\n\n"+
				"CONFIRM: %s\nCANCEL: %s\n\n"+
				"If you haven't completed your intake forms yet, please do so immediately and bring "+
				"them to your appointment.\n\n%s",
			appt.PatientName, appt.Doctor, appt.Date, appt.Start, confirmLink, cancelLink, signature)
	}
	return subject, body
}

// AdminAlertEmail notifies office staff about a conversation or ticket
// that needs a human.
func AdminAlertEmail(reason, detail string) (subject, body string) {
	subject = fmt.Sprintf("ClinicDesk needs attention: %s", reason)
	body = fmt.Sprintf(
		"A scheduling workflow needs manual follow-up.\n\nReason: %s\nDetail: %s\n",
		reason, detail)
	return subject, body
}
