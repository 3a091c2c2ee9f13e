package flow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
)

func (s *Service) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[GraphInput, GraphOutput], error) {
	graph := compose.NewGraph[GraphInput, GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in GraphInput) (*GraphState, error) {
			return validateRequest(in, s.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_session",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return loadOrCreateSession(ctx, in, s.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_session: %w", err)
	}

	if err := graph.AddLambdaNode("extract_intent",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return extractIntent(ctx, in, s.extractor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extract_intent: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_stage",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return dispatchStage(ctx, in, s.deps)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_stage: %w", err)
	}

	if err := graph.AddLambdaNode("apply_effects",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return applyEffects(ctx, in, s.effects)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node apply_effects: %w", err)
	}

	if err := graph.AddLambdaNode("save_session",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (*GraphState, error) {
			return saveSession(ctx, in, s.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_session: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *GraphState) (GraphOutput, error) {
			return finalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_session"},
		{"load_or_create_session", "extract_intent"},
		{"extract_intent", "dispatch_stage"},
		{"dispatch_stage", "apply_effects"},
		{"apply_effects", "save_session"},
		{"save_session", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("flow.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile conversation graph: %w", err)
	}
	return runner, nil
}
