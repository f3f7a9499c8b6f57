package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var errEmptyResponse = errors.New("model returned no choices")

// ClassificationError indicates the model's classification output did not
// decode into the expected closed enumeration. The conversation state is
// unchanged and the stage is safe to retry; callers must surface this
// rather than fall back to a default route.
type ClassificationError struct {
	// Raw is the model output that failed to decode.
	Raw string
	// Allowed is the closed enumeration that was expected.
	Allowed []string
	// Err is the underlying decode error, if any.
	Err error
}

// Error implements the error interface.
func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification output %q does not decode to one of %v: %v", e.Raw, e.Allowed, e.Err)
}

// Unwrap returns the underlying error.
func (e *ClassificationError) Unwrap() error { return e.Err }

// classification is the structured response requested from the model.
type classification struct {
	Decision string `json:"decision"`
}

// Classify asks the model to classify input into one of the allowed labels
// and decodes the structured response.
//
// The model is instructed to answer with a JSON object {"decision": <label>}.
// Mildly malformed JSON (unquoted keys, trailing commas, fenced code blocks)
// is repaired before decoding; the decode itself stays strict, so output that
// does not resolve to an allowed label fails with *ClassificationError.
// Transport and provider failures are returned unchanged.
func Classify(ctx context.Context, client Client, instructions, input string, allowed []string) (string, error) {
	system := fmt.Sprintf(
		"%s\n\nRespond with a JSON object of the form {\"decision\": <label>} where <label> is exactly one of: %s. No other text.",
		instructions, strings.Join(allowed, ", "))

	resp, err := client.Complete(ctx, CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{User(input)},
		Temperature:  0.0,
	})
	if err != nil {
		return "", err
	}

	return DecodeClassification(resp.Content, allowed)
}

// DecodeClassification decodes raw model output into one of the allowed
// labels. Exposed separately so stages that manage their own prompts can
// share the decode path.
func DecodeClassification(raw string, allowed []string) (string, error) {
	text := stripFences(raw)

	var c classification
	if err := json.Unmarshal([]byte(text), &c); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(text)
		if repErr != nil {
			return "", &ClassificationError{Raw: raw, Allowed: allowed, Err: err}
		}
		if err := json.Unmarshal([]byte(repaired), &c); err != nil {
			return "", &ClassificationError{Raw: raw, Allowed: allowed, Err: err}
		}
	}

	decision := strings.TrimSpace(c.Decision)
	for _, label := range allowed {
		if decision == label {
			return label, nil
		}
	}

	return "", &ClassificationError{
		Raw:     raw,
		Allowed: allowed,
		Err:     fmt.Errorf("label %q not in enumeration", decision),
	}
}

// stripFences removes a surrounding markdown code fence, which models add
// despite instructions often enough to handle here.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
