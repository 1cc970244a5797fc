package pipeline

import "testing"

func TestDetectDuplicateGenericReplies(t *testing.T) {
	positives := []string{
		"Thank you for your response.",
		"Got it. Appreciated!",
		"Noted, thanks.",
		"ACKNOWLEDGED",
		"understood, will do",
	}
	for _, body := range positives {
		if !DetectDuplicate(body) {
			t.Fatalf("expected duplicate for %q", body)
		}
	}
}

func TestDetectDuplicateSubstantiveReplies(t *testing.T) {
	negatives := []string{
		"Here is the requested information.",
		"Please see the attached file.",
		"",
		"   \n\n  ",
	}
	for _, body := range negatives {
		if DetectDuplicate(body) {
			t.Fatalf("unexpected duplicate for %q", body)
		}
	}
}

func TestDetectDuplicateUsesLastNonEmptyLine(t *testing.T) {
	body := "Please process the payment of $5000.\n\nThanks,\n\n"
	if !DetectDuplicate(body) {
		t.Fatal("trailing thanks line should flag duplicate")
	}

	body = "Thanks for your patience.\nHere are the wire details: ...\n"
	if DetectDuplicate(body) {
		t.Fatal("substantive last line should not flag duplicate")
	}
}
