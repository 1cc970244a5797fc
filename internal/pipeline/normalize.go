package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"mailtriage/internal"
	"mailtriage/internal/rules"
)

// NormalizeModelResponse validates and repairs raw model output into the
// canonical result record. All eight fields are always present afterwards,
// whatever the model returned:
//
//   - the duplicate flag is the heuristic's value, never the model's — the
//     heuristic is deterministic and auditable, the model's signal is not;
//   - role and assigned_to come from the routing table, overriding whatever
//     the model proposed for them;
//   - missing keys take their documented defaults, and extracted_data is an
//     empty map, never nil.
func NormalizeModelResponse(raw string, duplicate bool, table rules.Table) (internal.ClassificationResult, error) {
	cleaned := stripCodeFences(raw)

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return internal.ClassificationResult{}, &ProcessingError{
			Kind:    ErrMalformedModelOutput,
			Message: fmt.Sprintf("parse model response: %v", err),
			Raw:     cleaned,
		}
	}

	result := internal.ClassificationResult{
		RequestType:     stringField(payload, "request_type", internal.DefaultRequestType),
		SubRequestType:  stringField(payload, "sub_request_type", internal.DefaultSubRequestType),
		Duplicate:       duplicate,
		ConfidenceScore: stringField(payload, "confidence_score", internal.DefaultConfidence),
		Context:         stringField(payload, "context", internal.DefaultContext),
		ExtractedData:   stringMapField(payload, "extracted_data"),
	}

	entry := table.Resolve(result.RequestType, result.SubRequestType)
	result.Role = entry.Role
	result.AssignedTo = entry.AssignedTo

	return result, nil
}

func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// stringField tolerates non-string scalars: a model emitting 90 instead of
// "90%" is repaired, not rejected.
func stringField(payload map[string]any, key, fallback string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return fallback
		}
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func stringMapField(payload map[string]any, key string) map[string]string {
	out := map[string]string{}
	raw, ok := payload[key].(map[string]any)
	if !ok {
		return out
	}
	for k, v := range raw {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}
