package stages

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	statex "github.com/worameth/clinicdesk/agent/state"
	"github.com/worameth/clinicdesk/booking"
	"github.com/worameth/clinicdesk/records"
)

// HandleSchedule finds a slot and reserves it. The handler loops on the
// Schedule stage across turns: offer, patient picks, reserve. A stale
// pick falls into the alternatives path, bounded by MaxAlternativeOffers
// before a human takes over.
func HandleSchedule(ctx context.Context, sess *statex.Session, in contractx.ExtractResult, deps Deps) (Outcome, error) {
	mergeDraft(sess, in.Fields)

	// A human owns the scheduling once escalated; no further offers and
	// no repeated escalation effects.
	if sess.Escalated {
		return Outcome{
			Next:  statex.StageSchedule,
			Reply: "Our front desk has your request and will reach out to find a time that works.",
		}, nil
	}

	if in.Intent == contractx.IntentUnclear && in.Clarification != "" {
		return Outcome{Next: statex.StageSchedule, Reply: in.Clarification}, nil
	}

	if len(sess.OfferedSlots) > 0 {
		if choice, ok := resolveSlotChoice(sess.OfferedSlots, in); ok {
			return reserveChosen(ctx, sess, deps, choice)
		}
		if in.Intent == contractx.IntentChooseSlot {
			return Outcome{
				Next:  statex.StageSchedule,
				Reply: "I couldn't match that to one of the offered times. Which number works for you?",
			}, nil
		}
		if in.Intent == contractx.IntentDecline {
			// Walked away from this batch; widen the search.
			sess.ClearOffers()
			return offerAlternatives(ctx, sess, deps, "offered times declined")
		}
	}

	requestedDate := strings.TrimSpace(in.Fields[contractx.FieldDate])
	if sess.Draft.DoctorPreference == "" && requestedDate == "" {
		return Outcome{
			Next:  statex.StageSchedule,
			Reply: "Do you have a preferred doctor, or a date that works best?",
		}, nil
	}

	free, err := deps.Engine.FindAvailable(ctx, sess.Draft.DoctorPreference, searchRange(deps, requestedDate))
	if err != nil {
		return Outcome{}, fmt.Errorf("schedule: %w", err)
	}
	if len(free) == 0 {
		return offerAlternatives(ctx, sess, deps, "no slots for requested doctor or date")
	}

	if len(free) > deps.offerCount() {
		free = free[:deps.offerCount()]
	}
	sess.OfferedSlots = toOffered(free)
	return Outcome{
		Next: statex.StageSchedule,
		Reply: fmt.Sprintf("Here's what I have available:\n%s\nWhich one should I book?",
			formatOffers(sess.OfferedSlots)),
	}, nil
}

func reserveChosen(ctx context.Context, sess *statex.Session, deps Deps, choice statex.OfferedSlot) (Outcome, error) {
	appt, err := deps.Engine.Reserve(ctx, choice.Doctor, choice.SlotID, booking.Request{
		PatientID:   sess.PatientID,
		PatientName: sess.Draft.Name,
		Reason:      sess.Draft.Reason,
	})
	switch {
	case err == nil:
		sess.ReservedSlotID = appt.SlotID
		sess.AppointmentID = appt.ID
		sess.ScheduleAttempts = 0
		sess.ClearOffers()
		return Outcome{
			Next: statex.StageInsurance,
			Reply: fmt.Sprintf("Booked: %s on %s at %s. "+
				"Now, could I get your insurance carrier, member ID, and group number?",
				appt.Doctor, appt.Date, appt.Start),
		}, nil
	case errors.Is(err, booking.ErrSlotUnavailable):
		sess.ClearOffers()
		return offerAlternatives(ctx, sess, deps, "chosen slot was taken")
	default:
		return Outcome{}, fmt.Errorf("schedule: %w", err)
	}
}

// offerAlternatives runs one bounded alternatives round across all
// doctors. Past the cap the conversation is handed to a human.
func offerAlternatives(ctx context.Context, sess *statex.Session, deps Deps, reason string) (Outcome, error) {
	sess.ScheduleAttempts++
	if sess.ScheduleAttempts > deps.maxOffers() {
		sess.Escalated = true
		return Outcome{
			Next: statex.StageSchedule,
			Reply: "I'm having trouble finding a time that works. " +
				"I've asked our front desk to reach out and sort this out personally.",
			Effects: []contractx.EffectRequest{{
				Type:   contractx.EffectEscalateHuman,
				Reason: fmt.Sprintf("scheduling exhausted after %d offers: %s", sess.ScheduleAttempts-1, reason),
			}},
		}, nil
	}

	alts, err := deps.Engine.SuggestAlternatives(ctx, nil, searchRange(deps, ""), deps.offerCount())
	if err != nil {
		return Outcome{}, fmt.Errorf("schedule alternatives: %w", err)
	}
	if len(alts) == 0 {
		sess.Escalated = true
		return Outcome{
			Next: statex.StageSchedule,
			Reply: "I don't see any openings in the next two weeks. " +
				"Our front desk will contact you to find a time.",
			Effects: []contractx.EffectRequest{{
				Type:   contractx.EffectEscalateHuman,
				Reason: "no free slots across all doctors",
			}},
		}, nil
	}

	sess.OfferedSlots = toOffered(alts)
	return Outcome{
		Next: statex.StageSchedule,
		Reply: fmt.Sprintf("That time isn't available, but I can offer:\n%s\nWould any of these work?",
			formatOffers(sess.OfferedSlots)),
		Effects: []contractx.EffectRequest{{
			Type:         contractx.EffectOfferAlternatives,
			Reason:       reason,
			Alternatives: toSlotRefs(sess.OfferedSlots),
		}},
	}, nil
}

// resolveSlotChoice maps the patient's pick onto an offered slot, by
// 1-based index first, then by literal time or date match.
func resolveSlotChoice(offers []statex.OfferedSlot, in contractx.ExtractResult) (statex.OfferedSlot, bool) {
	raw := strings.TrimSpace(in.Fields[contractx.FieldSlotChoice])
	if raw == "" && in.Intent == contractx.IntentConfirm && len(offers) == 1 {
		return offers[0], true
	}
	if raw == "" {
		return statex.OfferedSlot{}, false
	}

	if n, err := strconv.Atoi(raw); err == nil {
		if n >= 1 && n <= len(offers) {
			return offers[n-1], true
		}
		return statex.OfferedSlot{}, false
	}

	for _, o := range offers {
		if strings.Contains(raw, o.Start) || strings.Contains(raw, o.Date) ||
			strings.EqualFold(raw, o.Doctor) {
			return o, true
		}
	}
	return statex.OfferedSlot{}, false
}

func searchRange(deps Deps, requestedDate string) records.DateRange {
	if requestedDate != "" {
		return records.DateRange{From: requestedDate, To: requestedDate}
	}
	today := deps.now().UTC()
	return records.DateRange{
		From: today.Format("2006-01-02"),
		To:   today.AddDate(0, 0, deps.searchDays()).Format("2006-01-02"),
	}
}

func toOffered(slots []records.AvailabilitySlot) []statex.OfferedSlot {
	out := make([]statex.OfferedSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, statex.OfferedSlot{
			SlotID: s.ID,
			Doctor: s.Doctor,
			Date:   s.Date,
			Start:  s.Start,
		})
	}
	return out
}

func toSlotRefs(offers []statex.OfferedSlot) []contractx.SlotRef {
	out := make([]contractx.SlotRef, 0, len(offers))
	for _, o := range offers {
		out = append(out, contractx.SlotRef{
			SlotID: o.SlotID,
			Doctor: o.Doctor,
			Date:   o.Date,
			Start:  o.Start,
		})
	}
	return out
}

func formatOffers(offers []statex.OfferedSlot) string {
	lines := make([]string, 0, len(offers))
	for i, o := range offers {
		lines = append(lines, fmt.Sprintf("%d. %s on %s at %s", i+1, o.Doctor, o.Date, o.Start))
	}
	return strings.Join(lines, "\n")
}
