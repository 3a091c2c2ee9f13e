package contract

import "context"

// Extractor is the text-generation collaborator: free text in, validated
// structured fields out. The flow treats it as an opaque function.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}
