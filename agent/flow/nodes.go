package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	"github.com/worameth/clinicdesk/agent/stages"
	statex "github.com/worameth/clinicdesk/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message text is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	SessionID string
	Stage     statex.Stage
	Reply     string
}

// GraphState is threaded through the pipeline nodes for one turn.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Sess    *statex.Session
	Extract contractx.ExtractResult

	Replies        []string
	Effects        []contractx.EffectRequest
	EffectFailures []string
}

func validateRequest(in GraphInput, now func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, fmt.Errorf("%w", ErrInvalidSession)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, fmt.Errorf("%w", ErrInvalidMessage)
	}
	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       now().UTC(),
	}, nil
}

func loadOrCreateSession(ctx context.Context, st *GraphState, store statex.Store) (*GraphState, error) {
	sess, err := store.Load(ctx, st.SessionID)
	switch {
	case err == nil:
		st.Sess = sess
	case errors.Is(err, statex.ErrSessionNotFound):
		st.Sess = statex.NewSession(st.SessionID, st.Now)
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
	return st, nil
}

func extractIntent(ctx context.Context, st *GraphState, extractor contractx.Extractor) (*GraphState, error) {
	if st.Sess.Stage.Terminal() {
		return st, nil
	}

	result, err := extractor.Extract(ctx, contractx.ExtractRequest{
		UserMessage: st.Text,
		Stage:       string(st.Sess.Stage),
		Transcript:  toContractTurns(st.Sess.Transcript),
		Now:         st.Now,
	})
	if err != nil {
		// A misbehaving model turns into a clarification ask rather
		// than a dead conversation.
		if errors.Is(err, contractx.ErrSchemaViolation) || errors.Is(err, contractx.ErrModelInvoke) {
			log.Warn().Err(err).Str("session_id", st.SessionID).Msg("intake extraction degraded")
			st.Extract = contractx.ExtractResult{
				Intent:        contractx.IntentUnclear,
				Clarification: "Sorry, I didn't catch that. Could you rephrase?",
			}
			return st, nil
		}
		return nil, fmt.Errorf("extract intent: %w", err)
	}
	st.Extract = result
	return st, nil
}

// dispatchStage runs the current stage handler, then chains any stages
// that run without user input. A cancel intent aborts from anywhere,
// releasing the reserved slot.
func dispatchStage(ctx context.Context, st *GraphState, deps stages.Deps) (*GraphState, error) {
	sess := st.Sess
	sess.RecordTurn("patient", st.Text)

	if sess.Stage.Terminal() {
		st.Replies = append(st.Replies,
			"This conversation has wrapped up. Start a new session to book another appointment.")
		return st, nil
	}

	if st.Extract.Intent == contractx.IntentCancel && sess.Stage != statex.StageConfirm {
		return abortConversation(ctx, st, deps)
	}

	in := st.Extract
	for {
		handler, err := stages.ForStage(sess.Stage)
		if err != nil {
			return nil, err
		}
		outcome, err := handler(ctx, sess, in, deps)
		if err != nil {
			return nil, err
		}

		if outcome.Reply != "" {
			st.Replies = append(st.Replies, outcome.Reply)
		}
		st.Effects = append(st.Effects, outcome.Effects...)

		if outcome.Next == statex.StageAborted {
			if err := sess.Abort(st.Now); err != nil {
				return nil, err
			}
			break
		}
		if err := sess.Advance(outcome.Next, st.Now); err != nil {
			return nil, err
		}
		if sess.Stage.Terminal() || !stages.AutoRun(sess.Stage) {
			break
		}
		// Auto-run stages consume no user input.
		in = contractx.ExtractResult{}
	}

	sess.RecordTurn("assistant", strings.Join(st.Replies, " "))
	return st, nil
}

func abortConversation(ctx context.Context, st *GraphState, deps stages.Deps) (*GraphState, error) {
	sess := st.Sess
	if sess.AppointmentID != "" {
		if err := deps.Engine.Release(ctx, sess.AppointmentID, "patient cancelled"); err != nil {
			return nil, fmt.Errorf("abort release: %w", err)
		}
	}
	if err := sess.Abort(st.Now); err != nil {
		return nil, err
	}
	st.Replies = append(st.Replies,
		"Understood, I've cancelled the request. Feel free to reach out any time.")
	sess.RecordTurn("assistant", st.Replies[len(st.Replies)-1])
	return st, nil
}

// applyEffects executes the side effects the handlers queued. Failures
// never fail the turn; they surface as a notice and a log line.
func applyEffects(ctx context.Context, st *GraphState, exec *EffectExecutor) (*GraphState, error) {
	for _, eff := range st.Effects {
		if err := exec.Execute(ctx, st.Sess, eff); err != nil {
			log.Error().Err(err).
				Str("session_id", st.SessionID).
				Str("effect", string(eff.Type)).
				Msg("effect failed")
			st.EffectFailures = append(st.EffectFailures, string(eff.Type))
		}
	}
	return st, nil
}

func saveSession(ctx context.Context, st *GraphState, store statex.Store) (*GraphState, error) {
	st.Sess.Version++
	st.Sess.Touch(st.Now)
	if err := st.Sess.Validate(); err != nil {
		return nil, fmt.Errorf("session invalid before save: %w", err)
	}
	if err := store.Save(ctx, st.Sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return st, nil
}

func finalizeReply(st *GraphState) (GraphOutput, error) {
	reply := strings.Join(st.Replies, "\n\n")
	if len(st.EffectFailures) > 0 {
		reply += "\n\nNote: one of our notifications didn't go through; our staff will follow up by phone if needed."
	}
	return GraphOutput{
		SessionID: st.SessionID,
		Stage:     st.Sess.Stage,
		Reply:     reply,
	}, nil
}

func toContractTurns(turns []statex.Turn) []contractx.Turn {
	out := make([]contractx.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, contractx.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}
