package stages

import (
	"context"
	"strings"
	"testing"
	"time"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/booking"
	"github.com/worameth/clinicdesk/records"
)

var handlerNow = time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)

func newDeps(t *testing.T) (Deps, records.Repository) {
	t.Helper()
	repo := records.NewMemoryRepository()
	deps := Deps{
		Repo:     repo,
		Engine:   booking.NewEngine(repo, booking.WithClock(func() time.Time { return handlerNow })),
		Carriers: []string{"Aetna", "BlueCross", "Cigna", "UnitedHealth", "Humana"},
		Now:      func() time.Time { return handlerNow },
	}
	return deps, repo
}

func newSession() *statex.Session {
	return statex.NewSession("sess-test", handlerNow)
}

func seedScheduleSlots(t *testing.T, repo records.Repository) {
	t.Helper()
	err := repo.CreateSlots(context.Background(), []records.AvailabilitySlot{
		{ID: "s1", Doctor: "Dr. Smith", Date: "2026-09-01", Start: "09:00", Available: true},
		{ID: "s2", Doctor: "Dr. Smith", Date: "2026-09-01", Start: "09:30", Available: true},
		{ID: "s3", Doctor: "Dr. Johnson", Date: "2026-09-02", Start: "10:00", Available: true},
	})
	if err != nil {
		t.Fatalf("seed slots: %v", err)
	}
}

func TestHandleGreetingCapturesVolunteeredIdentity(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t)

	sess := newSession()
	out, err := HandleGreeting(context.Background(), sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldName: "Dan Wu",
			contractx.FieldDOB:  "1979-11-02",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleGreeting error = %v", err)
	}
	if out.Next != statex.StageIdentify {
		t.Fatalf("Next = %s, want identify", out.Next)
	}
	if sess.Draft.Name != "Dan Wu" || sess.Draft.DOB != "1979-11-02" {
		t.Fatalf("draft not captured: %+v", sess.Draft)
	}
	if !strings.Contains(out.Reply, "Dan Wu") {
		t.Fatalf("reply = %q, want acknowledgment by name", out.Reply)
	}
}

func TestHandleIdentifyAsksForMissingPieces(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t)

	sess := newSession()
	sess.Stage = statex.StageIdentify
	sess.Draft.Name = "Dan Wu"

	out, err := HandleIdentify(context.Background(), sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
	}, deps)
	if err != nil {
		t.Fatalf("HandleIdentify error = %v", err)
	}
	if out.Next != statex.StageIdentify {
		t.Fatalf("Next = %s, want identify loop", out.Next)
	}
	if !strings.Contains(out.Reply, "date of birth") {
		t.Fatalf("reply = %q, want date-of-birth ask", out.Reply)
	}
}

func TestHandleIdentifyFindsReturningPatient(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()

	if err := repo.CreatePatient(ctx, &records.Patient{
		Name: "Dan Wu", DOB: "1979-11-02",
		Email: "dan@example.com", Phone: "555-987-6543",
		DoctorPreference: "Dr. Johnson",
	}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	sess := newSession()
	sess.Stage = statex.StageIdentify
	out, err := HandleIdentify(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldName: "dan wu",
			contractx.FieldDOB:  "1979-11-02",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleIdentify error = %v", err)
	}
	if out.Next != statex.StageCollect {
		t.Fatalf("Next = %s, want collect", out.Next)
	}
	if !sess.Returning || sess.PatientID != "1" {
		t.Fatalf("session not linked: returning=%v id=%q", sess.Returning, sess.PatientID)
	}
	// The stored contacts prefill the draft.
	if sess.Draft.Email != "dan@example.com" || sess.Draft.DoctorPreference != "Dr. Johnson" {
		t.Fatalf("draft not prefilled: %+v", sess.Draft)
	}
}

func TestHandleIdentifyMissStartsFreshIntake(t *testing.T) {
	t.Parallel()
	deps, _ := newDeps(t)

	sess := newSession()
	sess.Stage = statex.StageIdentify
	out, err := HandleIdentify(context.Background(), sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldName: "Nobody Known",
			contractx.FieldDOB:  "2000-01-01",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleIdentify error = %v", err)
	}
	if out.Next != statex.StageCollect {
		t.Fatalf("Next = %s, want collect", out.Next)
	}
	if sess.Returning || sess.PatientID != "" {
		t.Fatal("miss should not link a patient")
	}
}

func TestHandleCollectRejectsBadContactsAndCreatesPatient(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()

	sess := newSession()
	sess.Stage = statex.StageCollect
	sess.Draft.Name = "Maria Lopez"
	sess.Draft.DOB = "1988-04-12"

	// Garbage contacts are dropped, so the handler keeps asking.
	out, err := HandleCollect(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldEmail: "not-an-email",
			contractx.FieldPhone: "12345",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleCollect error = %v", err)
	}
	if out.Next != statex.StageCollect {
		t.Fatalf("Next = %s, want collect loop", out.Next)
	}
	if sess.Draft.Email != "" || sess.Draft.Phone != "" {
		t.Fatalf("invalid contacts stored: %+v", sess.Draft)
	}

	out, err = HandleCollect(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldEmail:  "maria@example.com.com",
			contractx.FieldPhone:  "(555) 013-4567",
			contractx.FieldReason: "annual checkup",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleCollect error = %v", err)
	}
	if out.Next != statex.StageSchedule {
		t.Fatalf("Next = %s, want schedule", out.Next)
	}

	patient, err := repo.GetPatient(ctx, sess.PatientID)
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if patient.Email != "maria@example.com" {
		t.Fatalf("email = %q, want repaired address", patient.Email)
	}
	if patient.Phone != "555-013-4567" {
		t.Fatalf("phone = %q, want normalized", patient.Phone)
	}
	if patient.Type != records.PatientNew {
		t.Fatalf("type = %s, want new", patient.Type)
	}
}

func TestHandleCollectRefreshesReturningPatient(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()

	if err := repo.CreatePatient(ctx, &records.Patient{
		Name: "Dan Wu", DOB: "1979-11-02",
		Email: "old@example.com", Phone: "555-000-0000",
	}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	sess := newSession()
	sess.Stage = statex.StageCollect
	sess.PatientID = "1"
	sess.Returning = true
	sess.Draft = statex.Draft{Name: "Dan Wu", DOB: "1979-11-02"}

	out, err := HandleCollect(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldEmail:  "dan.new@example.com",
			contractx.FieldPhone:  "5559876543",
			contractx.FieldReason: "knee pain",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleCollect error = %v", err)
	}
	if out.Next != statex.StageSchedule {
		t.Fatalf("Next = %s, want schedule", out.Next)
	}

	patient, err := repo.GetPatient(ctx, "1")
	if err != nil {
		t.Fatalf("GetPatient: %v", err)
	}
	if patient.Email != "dan.new@example.com" || patient.Phone != "555-987-6543" {
		t.Fatalf("contacts not refreshed: %+v", patient)
	}
	if patient.Type != records.PatientReturning {
		t.Fatalf("type = %s, want returning", patient.Type)
	}
}

func TestHandleScheduleOffersThenReserves(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := newSession()
	sess.Stage = statex.StageSchedule
	sess.PatientID = "1"
	sess.Draft.Name = "Maria Lopez"
	sess.Draft.DoctorPreference = "Dr. Smith"
	sess.Draft.Reason = "checkup"

	out, err := HandleSchedule(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
	}, deps)
	if err != nil {
		t.Fatalf("HandleSchedule error = %v", err)
	}
	if out.Next != statex.StageSchedule {
		t.Fatalf("Next = %s, want schedule loop", out.Next)
	}
	if len(sess.OfferedSlots) != 2 {
		t.Fatalf("offered = %d, want the two Dr. Smith slots", len(sess.OfferedSlots))
	}

	out, err = HandleSchedule(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentChooseSlot,
		Fields: map[string]string{contractx.FieldSlotChoice: "2"},
	}, deps)
	if err != nil {
		t.Fatalf("HandleSchedule choose error = %v", err)
	}
	if out.Next != statex.StageInsurance {
		t.Fatalf("Next = %s, want insurance", out.Next)
	}
	if sess.ReservedSlotID != "s2" || sess.AppointmentID == "" {
		t.Fatalf("reservation not recorded: slot=%q appt=%q", sess.ReservedSlotID, sess.AppointmentID)
	}

	slot, err := repo.GetSlot(ctx, "s2")
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if slot.Available {
		t.Fatal("slot s2 still available after reserve")
	}
}

func TestHandleScheduleStalePickFallsToAlternatives(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := newSession()
	sess.Stage = statex.StageSchedule
	sess.Draft.Name = "Maria Lopez"
	sess.OfferedSlots = []statex.OfferedSlot{
		{SlotID: "s1", Doctor: "Dr. Smith", Date: "2026-09-01", Start: "09:00"},
	}

	slot, err := repo.GetSlot(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	slot.Available = false
	if err := repo.UpdateSlot(ctx, slot); err != nil {
		t.Fatalf("UpdateSlot: %v", err)
	}

	out, err := HandleSchedule(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentChooseSlot,
		Fields: map[string]string{contractx.FieldSlotChoice: "1"},
	}, deps)
	if err != nil {
		t.Fatalf("HandleSchedule error = %v", err)
	}
	if out.Next != statex.StageSchedule {
		t.Fatalf("Next = %s, want schedule loop", out.Next)
	}
	if sess.ScheduleAttempts != 1 {
		t.Fatalf("attempts = %d, want 1", sess.ScheduleAttempts)
	}
	// The stale offer was swapped for fresh ones across all doctors.
	for _, o := range sess.OfferedSlots {
		if o.SlotID == "s1" {
			t.Fatal("stale slot still offered")
		}
	}
	if len(out.Effects) != 1 || out.Effects[0].Type != contractx.EffectOfferAlternatives {
		t.Fatalf("effects = %+v, want one offer_alternatives", out.Effects)
	}
}

func TestHandleScheduleEscalatesPastOfferCap(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)
	deps.MaxAlternativeOffers = 1

	sess := newSession()
	sess.Stage = statex.StageSchedule
	sess.ScheduleAttempts = 1
	sess.OfferedSlots = []statex.OfferedSlot{
		{SlotID: "s1", Doctor: "Dr. Smith", Date: "2026-09-01", Start: "09:00"},
	}

	out, err := HandleSchedule(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentDecline,
	}, deps)
	if err != nil {
		t.Fatalf("HandleSchedule error = %v", err)
	}
	if !sess.Escalated {
		t.Fatal("session not escalated past the cap")
	}
	if len(out.Effects) != 1 || out.Effects[0].Type != contractx.EffectEscalateHuman {
		t.Fatalf("effects = %+v, want one escalate_human", out.Effects)
	}
}

func TestHandleScheduleEscalatedSessionStaysQuiet(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := newSession()
	sess.Stage = statex.StageSchedule
	sess.Escalated = true

	out, err := HandleSchedule(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{contractx.FieldDate: "2026-09-01"},
	}, deps)
	if err != nil {
		t.Fatalf("HandleSchedule error = %v", err)
	}
	if out.Next != statex.StageSchedule {
		t.Fatalf("Next = %s, want schedule hold", out.Next)
	}
	if len(out.Effects) != 0 {
		t.Fatalf("effects = %+v, want none after escalation", out.Effects)
	}
	if !strings.Contains(out.Reply, "front desk") {
		t.Fatalf("reply = %q, want front desk hold message", out.Reply)
	}
}

func TestHandleInsuranceUnknownCarrierFlagsNotBlocks(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := bookedSession(t, ctx, deps, repo)
	out, err := HandleInsurance(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentProvideInfo,
		Fields: map[string]string{
			contractx.FieldInsuranceCarrier: "Kaiser",
			contractx.FieldMemberID:         "K-1",
		},
	}, deps)
	if err != nil {
		t.Fatalf("HandleInsurance error = %v", err)
	}
	if out.Next != statex.StageConfirm {
		t.Fatalf("Next = %s, want confirm", out.Next)
	}
	if !strings.Contains(out.Reply, "couldn't verify") {
		t.Fatalf("reply = %q, want verification caveat", out.Reply)
	}

	appt, err := repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if appt.InsuranceVerified {
		t.Fatal("unknown carrier marked verified")
	}
}

func TestHandleInsuranceDeclineProceedsUnverified(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := bookedSession(t, ctx, deps, repo)
	out, err := HandleInsurance(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentDecline,
	}, deps)
	if err != nil {
		t.Fatalf("HandleInsurance error = %v", err)
	}
	if out.Next != statex.StageConfirm {
		t.Fatalf("Next = %s, want confirm", out.Next)
	}
}

func TestHandleConfirmDeclineReleasesSlot(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := bookedSession(t, ctx, deps, repo)
	out, err := HandleConfirm(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentDecline,
	}, deps)
	if err != nil {
		t.Fatalf("HandleConfirm error = %v", err)
	}
	if out.Next != statex.StageAborted {
		t.Fatalf("Next = %s, want aborted", out.Next)
	}

	slot, err := repo.GetSlot(ctx, sess.ReservedSlotID)
	if err != nil {
		t.Fatalf("GetSlot: %v", err)
	}
	if !slot.Available {
		t.Fatal("slot not released on decline")
	}
	appt, err := repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if appt.Status != records.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", appt.Status)
	}
}

func TestHandleConfirmLocksInAndQueuesEmail(t *testing.T) {
	t.Parallel()
	deps, repo := newDeps(t)
	ctx := context.Background()
	seedScheduleSlots(t, repo)

	sess := bookedSession(t, ctx, deps, repo)
	sess.Draft.Email = "maria@example.com"

	out, err := HandleConfirm(ctx, sess, contractx.ExtractResult{
		Intent: contractx.IntentConfirm,
	}, deps)
	if err != nil {
		t.Fatalf("HandleConfirm error = %v", err)
	}
	if out.Next != statex.StageDistribute {
		t.Fatalf("Next = %s, want distribute", out.Next)
	}
	if len(out.Effects) != 1 || out.Effects[0].Type != contractx.EffectSendEmail {
		t.Fatalf("effects = %+v, want one send_email", out.Effects)
	}
	if out.Effects[0].Recipient != "maria@example.com" {
		t.Fatalf("recipient = %q", out.Effects[0].Recipient)
	}

	appt, err := repo.GetAppointment(ctx, sess.AppointmentID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if appt.Status != records.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", appt.Status)
	}
}

// bookedSession sets up a session holding a live reservation on s1, the
// way Schedule leaves it.
func bookedSession(t *testing.T, ctx context.Context, deps Deps, repo records.Repository) *statex.Session {
	t.Helper()

	if err := repo.CreatePatient(ctx, &records.Patient{
		Name: "Maria Lopez", DOB: "1988-04-12",
		Email: "maria@example.com", Phone: "555-013-4567",
	}); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	appt, err := deps.Engine.Reserve(ctx, "Dr. Smith", "s1", booking.Request{
		PatientID:   "1",
		PatientName: "Maria Lopez",
		Reason:      "checkup",
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	sess := newSession()
	sess.Stage = statex.StageInsurance
	sess.PatientID = "1"
	sess.Draft.Name = "Maria Lopez"
	sess.ReservedSlotID = appt.SlotID
	sess.AppointmentID = appt.ID
	return sess
}
