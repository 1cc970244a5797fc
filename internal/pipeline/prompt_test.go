package pipeline

import (
	"strings"
	"testing"

	"mailtriage/internal/rules"
)

func testRules(t *testing.T) *rules.Rules {
	t.Helper()
	r, err := rules.Parse([]byte(`
classification_criteria:
  Fee Payment:
    - Letter of Credit Fee
extractable_fields:
  Fee Payment:
    - Amount
roles_and_skills:
  Fee Payment:
    Letter of Credit Fee:
      role: Trade Finance Expert
      assigned_to: Trade Finance Team
`))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestBuildClassificationRequest(t *testing.T) {
	r := testRules(t)
	req := BuildClassificationRequest("Fee Payment Request", "Please pay the LC fee.\nThanks,", "Attachment says $5000", r)

	if !req.Duplicate {
		t.Fatal("trailing thanks should set duplicate")
	}
	for _, want := range []string{
		"Fee Payment Request",
		"Please pay the LC fee.",
		"Attachment says $5000",
		"Letter of Credit Fee",
		`"DuplicateFlag": true`,
		"confidence score (0-100%)",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
	if !strings.Contains(req.System, "pure JSON") {
		t.Fatalf("system=%q", req.System)
	}
}

func TestBuildClassificationRequestNoAttachment(t *testing.T) {
	req := BuildClassificationRequest("Subject", "Body content here.", "  ", testRules(t))
	if req.Duplicate {
		t.Fatal("substantive body should not be duplicate")
	}
	if !strings.Contains(req.Prompt, "Attachment Content: No Attachment") {
		t.Fatal("empty attachment text should surface as No Attachment")
	}
}

func TestDuplicateComputedFromBodyOnly(t *testing.T) {
	// The attachment text ends in an acknowledgment but the body does not;
	// attachments are a data source, not a conversation thread.
	req := BuildClassificationRequest("Subject", "Wire details below.", "thanks", testRules(t))
	if req.Duplicate {
		t.Fatal("attachment text must not drive the duplicate flag")
	}
}
