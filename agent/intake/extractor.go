package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/worameth/clinicdesk/agent/contract"
)

// transcriptWindow bounds how much history rides along with each turn.
const transcriptWindow = 12

type extractLLMOutput struct {
	Intent        string            `json:"intent"`
	Fields        map[string]string `json:"fields,omitempty"`
	Clarification string            `json:"clarification,omitempty"`
}

// Extractor turns a raw patient message into a validated intent plus
// typed fields via a structured-JSON model graph.
type Extractor struct {
	runner compose.Runnable[map[string]any, extractLLMOutput]
}

var _ contractx.Extractor = (*Extractor)(nil)

func NewExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Extractor, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: intake system prompt is empty", contractx.ErrValidation)
	}
	runner, err := compileExtractGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &Extractor{runner: runner}, nil
}

func (e *Extractor) Extract(ctx context.Context, req contractx.ExtractRequest) (contractx.ExtractResult, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return contractx.ExtractResult{}, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	transcript := req.Transcript
	if len(transcript) > transcriptWindow {
		transcript = transcript[len(transcript)-transcriptWindow:]
	}

	payload := map[string]any{
		"user_message": req.UserMessage,
		"stage":        req.Stage,
		"transcript":   transcript,
		"now":          req.Now.UTC().Format("2006-01-02 15:04 Monday"),
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return contractx.ExtractResult{}, fmt.Errorf("%w: marshal intake payload: %v", contractx.ErrValidation, err)
	}

	out, err := e.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		return contractx.ExtractResult{}, fmt.Errorf("%w: intake invoke: %v", contractx.ErrModelInvoke, err)
	}

	return validateOutput(out)
}

var knownFieldKeys = map[string]struct{}{
	contractx.FieldName:             {},
	contractx.FieldDOB:              {},
	contractx.FieldEmail:            {},
	contractx.FieldPhone:            {},
	contractx.FieldDoctorPreference: {},
	contractx.FieldDate:             {},
	contractx.FieldSlotChoice:       {},
	contractx.FieldInsuranceCarrier: {},
	contractx.FieldMemberID:         {},
	contractx.FieldGroupNumber:      {},
	contractx.FieldReason:           {},
}

var knownIntents = map[contractx.Intent]struct{}{
	contractx.IntentProvideInfo: {},
	contractx.IntentChooseSlot:  {},
	contractx.IntentConfirm:     {},
	contractx.IntentDecline:     {},
	contractx.IntentCancel:      {},
	contractx.IntentUnclear:     {},
}

// validateOutput enforces the extractor schema: known intent, known
// field keys, no empty values. Unknown keys are dropped, an unknown
// intent is a hard failure.
func validateOutput(out extractLLMOutput) (contractx.ExtractResult, error) {
	intent := contractx.Intent(strings.TrimSpace(strings.ToLower(out.Intent)))
	if _, ok := knownIntents[intent]; !ok {
		return contractx.ExtractResult{}, fmt.Errorf("%w: unsupported intent %q", contractx.ErrSchemaViolation, out.Intent)
	}

	result := contractx.ExtractResult{
		Intent:        intent,
		Clarification: strings.TrimSpace(out.Clarification),
	}
	if intent == contractx.IntentUnclear && result.Clarification == "" {
		return contractx.ExtractResult{}, fmt.Errorf("%w: unclear intent must carry a clarification", contractx.ErrSchemaViolation)
	}

	for key, value := range out.Fields {
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(value)
		if _, ok := knownFieldKeys[key]; !ok || value == "" {
			continue
		}
		if result.Fields == nil {
			result.Fields = make(map[string]string, len(out.Fields))
		}
		result.Fields[key] = value
	}
	return result, nil
}
