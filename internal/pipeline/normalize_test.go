package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"mailtriage/internal"
	"mailtriage/internal/rules"
)

func testTable(t *testing.T) rules.Table {
	t.Helper()
	return testRules(t).Routing
}

func TestNormalizeFullResponse(t *testing.T) {
	raw := `{"request_type":"Fee Payment","sub_request_type":"Letter of Credit Fee","confidence_score":"90%","context":"LC fee payment request","extracted_data":{"Amount":"$5000"}}`

	result, err := NormalizeModelResponse(raw, true, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestType != "Fee Payment" || result.SubRequestType != "Letter of Credit Fee" {
		t.Fatalf("result=%+v", result)
	}
	if !result.Duplicate {
		t.Fatal("duplicate flag lost")
	}
	if result.Role != "Trade Finance Expert" || result.AssignedTo != "Trade Finance Team" {
		t.Fatalf("routing=%s/%s", result.Role, result.AssignedTo)
	}
	if result.ExtractedData["Amount"] != "$5000" {
		t.Fatalf("extracted=%v", result.ExtractedData)
	}
}

func TestNormalizeDefaults(t *testing.T) {
	result, err := NormalizeModelResponse(`{}`, false, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestType != "Unclassified" || result.SubRequestType != "N/A" {
		t.Fatalf("result=%+v", result)
	}
	if result.ConfidenceScore != "Unknown" {
		t.Fatalf("confidence=%q", result.ConfidenceScore)
	}
	if result.Context != "No context provided" {
		t.Fatalf("context=%q", result.Context)
	}
	if result.ExtractedData == nil || len(result.ExtractedData) != 0 {
		t.Fatalf("extracted=%v", result.ExtractedData)
	}
	if result.Role != "Unassigned" || result.AssignedTo != "General Support" {
		t.Fatalf("routing=%s/%s", result.Role, result.AssignedTo)
	}
}

func TestNormalizeStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"request_type\": \"Fee Payment\", \"sub_request_type\": \"Letter of Credit Fee\"}\n```"
	result, err := NormalizeModelResponse(raw, false, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.RequestType != "Fee Payment" {
		t.Fatalf("result=%+v", result)
	}
}

func TestNormalizeIgnoresModelDuplicateOpinion(t *testing.T) {
	raw := `{"request_type":"Fee Payment","sub_request_type":"Letter of Credit Fee","DuplicateFlag":false}`
	result, err := NormalizeModelResponse(raw, true, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Duplicate {
		t.Fatal("computed duplicate flag must win over the model's")
	}
}

func TestNormalizeIgnoresModelRouting(t *testing.T) {
	raw := `{"request_type":"Fee Payment","sub_request_type":"Letter of Credit Fee","role":"Made Up","assigned_to":"Nobody"}`
	result, err := NormalizeModelResponse(raw, false, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.Role != "Trade Finance Expert" || result.AssignedTo != "Trade Finance Team" {
		t.Fatalf("routing=%s/%s", result.Role, result.AssignedTo)
	}
}

func TestNormalizeCoercesNonStringScalars(t *testing.T) {
	raw := `{"request_type":"Fee Payment","confidence_score":90,"extracted_data":{"Amount":5000}}`
	result, err := NormalizeModelResponse(raw, false, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if result.ConfidenceScore != "90" {
		t.Fatalf("confidence=%q", result.ConfidenceScore)
	}
	if result.ExtractedData["Amount"] != "5000" {
		t.Fatalf("extracted=%v", result.ExtractedData)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	_, err := NormalizeModelResponse("Invalid JSON", true, testTable(t))
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *ProcessingError
	if !errors.As(err, &perr) {
		t.Fatalf("err=%T", err)
	}
	if perr.Kind != ErrMalformedModelOutput {
		t.Fatalf("kind=%s", perr.Kind)
	}
	if perr.Raw != "Invalid JSON" {
		t.Fatalf("raw=%q", perr.Raw)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := `{"request_type":"Fee Payment","sub_request_type":"Letter of Credit Fee","confidence_score":"90%","context":"LC fee","extracted_data":{"Amount":"$5000"}}`
	first, err := NormalizeModelResponse(raw, true, testTable(t))
	if err != nil {
		t.Fatal(err)
	}

	serialized, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NormalizeModelResponse(string(serialized), true, testTable(t))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestResultFieldOrder(t *testing.T) {
	result := internal.ClassificationResult{ExtractedData: map[string]string{}}
	blob, err := json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"request_type":"","sub_request_type":"","DuplicateFlag":false,"confidence_score":"","assigned_to":"","role":"","context":"","extracted_data":{}}`
	if string(blob) != want {
		t.Fatalf("got %s", blob)
	}
}
