package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/worameth/clinicdesk/agent/contract"
	"github.com/worameth/clinicdesk/agent/intake"
	"github.com/worameth/clinicdesk/agent/llm"
	"github.com/worameth/clinicdesk/agent/prompt"
	configx "github.com/worameth/clinicdesk/pkg/config"
	_ "github.com/worameth/clinicdesk/pkg/logger/autoload"
	openrouterx "github.com/worameth/clinicdesk/pkg/openrouter"
)

// Connectivity check for the configured OpenRouter credentials: one raw
// completion through the SDK, then one structured extraction through the
// intake graph.
func main() {
	cfg := configx.MustNew[llm.Config]("OPENROUTER")
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("llm config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Println("[1] raw completion")
	testRawCompletion(ctx, *cfg)

	fmt.Println("[2] intake extraction")
	testIntakeExtraction(ctx, *cfg)
}

func testRawCompletion(ctx context.Context, cfg llm.Config) {
	client := openrouterx.NewClient(cfg.OpenRouterForIntake())
	if client == nil {
		log.Fatal().Msg("could not build openrouter client")
	}

	start := time.Now()
	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: cfg.Model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage("Reply with the single word: pong"),
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("raw completion failed")
	}
	fmt.Printf("    ok in %s: %s\n", time.Since(start).Round(time.Millisecond),
		resp.Choices[0].Message.Content)
}

func testIntakeExtraction(ctx context.Context, cfg llm.Config) {
	openRouterCfg := cfg.OpenRouterForIntake()
	chatModel, err := openRouterCfg.New(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("build chat model")
	}

	extractor, err := intake.NewExtractor(ctx, chatModel, prompt.LoadPromptSet().Intake)
	if err != nil {
		log.Fatal().Err(err).Msg("build extractor")
	}

	start := time.Now()
	result, err := extractor.Extract(ctx, contractx.ExtractRequest{
		UserMessage: "Hi, this is Maria Lopez, born April 12 1988. I need a checkup with Dr. Smith.",
		Stage:       "greeting",
		Now:         time.Now().UTC(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("extraction failed")
	}

	pretty, _ := json.MarshalIndent(result, "    ", "  ")
	fmt.Printf("    ok in %s:\n    %s\n", time.Since(start).Round(time.Millisecond), pretty)
}
