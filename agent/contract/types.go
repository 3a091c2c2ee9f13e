package contract

import "time"

// Intent is the coarse classification the intake extractor assigns to a
// user turn. Field-level data rides alongside in ExtractResult.Fields.
type Intent string

const (
	IntentProvideInfo Intent = "provide_info"
	IntentChooseSlot  Intent = "choose_slot"
	IntentConfirm     Intent = "confirm"
	IntentDecline     Intent = "decline"
	IntentCancel      Intent = "cancel"
	IntentUnclear     Intent = "unclear"
)

// Field keys the extractor may populate. Anything outside this set is
// dropped before the result reaches a stage handler.
const (
	FieldName             = "name"
	FieldDOB              = "dob"
	FieldEmail            = "email"
	FieldPhone            = "phone"
	FieldDoctorPreference = "doctor_preference"
	FieldDate             = "date"
	FieldSlotChoice       = "slot_choice"
	FieldInsuranceCarrier = "insurance_carrier"
	FieldMemberID         = "member_id"
	FieldGroupNumber      = "group_number"
	FieldReason           = "reason"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ExtractRequest struct {
	UserMessage string    `json:"user_message"`
	Stage       string    `json:"stage"`
	Transcript  []Turn    `json:"transcript,omitempty"`
	Now         time.Time `json:"now"`
}

type ExtractResult struct {
	Intent        Intent            `json:"intent"`
	Fields        map[string]string `json:"fields,omitempty"`
	Clarification string            `json:"clarification,omitempty"`
}

// EffectType names a side effect a stage handler requests of the flow.
// Handlers never talk to collaborators directly.
type EffectType string

const (
	EffectSendEmail         EffectType = "send_email"
	EffectSendForm          EffectType = "send_form"
	EffectOfferAlternatives EffectType = "offer_alternatives"
	EffectEscalateHuman     EffectType = "escalate_human"
	EffectScheduleReminders EffectType = "schedule_reminders"
)

type SlotRef struct {
	SlotID string `json:"slot_id"`
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Start  string `json:"start"`
}

type EffectRequest struct {
	Type          EffectType `json:"type"`
	AppointmentID string     `json:"appointment_id,omitempty"`
	Recipient     string     `json:"recipient,omitempty"`
	RecipientName string     `json:"recipient_name,omitempty"`
	Subject       string     `json:"subject,omitempty"`
	Body          string     `json:"body,omitempty"`
	Alternatives  []SlotRef  `json:"alternatives,omitempty"`
	Reason        string     `json:"reason,omitempty"`
}
