package flow

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	"github.com/worameth/clinicdesk/agent/stages"
	statex "github.com/worameth/clinicdesk/agent/state"
)

// Service drives one conversation turn end to end: validate, load
// session, extract intent, run the stage machine, execute effects, save.
type Service struct {
	store     statex.Store
	extractor contractx.Extractor
	deps      stages.Deps
	effects   *EffectExecutor

	graphRunner compose.Runnable[GraphInput, GraphOutput]

	now func() time.Time
}

func New(store statex.Store, extractor contractx.Extractor, deps stages.Deps, effects *EffectExecutor) (*Service, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if extractor == nil {
		return nil, errors.New("intake extractor is required")
	}
	if deps.Repo == nil {
		return nil, errors.New("record repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("booking engine is required")
	}
	if effects == nil {
		return nil, errors.New("effect executor is required")
	}

	s := &Service{
		store:     store,
		extractor: extractor,
		deps:      deps,
		effects:   effects,
		now:       time.Now,
	}
	if deps.Now != nil {
		s.now = deps.Now
	}

	graphRunner, err := s.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.graphRunner = graphRunner

	return s, nil
}

// HandleMessage processes one patient message and returns the reply and
// the stage the conversation landed on.
func (s *Service) HandleMessage(ctx context.Context, sessionID, text string) (GraphOutput, error) {
	return s.graphRunner.Invoke(ctx, GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
}
