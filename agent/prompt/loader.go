package prompt

import (
	_ "embed"
	"strings"
)

//go:embed template/intake.txt
var intakeRaw string

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Intake string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings. Safe to
// call concurrently; the embed is compile-time, trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Intake: strings.TrimSpace(intakeRaw),
	}
}
