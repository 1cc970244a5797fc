package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"mailtriage/internal/rules"
)

// ClassificationRequest is the fully assembled model request for one email.
// Built per invocation, never persisted.
type ClassificationRequest struct {
	Subject        string
	Body           string
	AttachmentText string
	Duplicate      bool
	System         string
	Prompt         string
}

const systemPrompt = "You are an AI email classifier. Always respond in pure JSON format without markdown (```)."

const promptTemplate = `You are an AI email classifier specializing in financial transactions.

### Task
1. Context-Based Classification: identify the RequestType and SubRequestType.
2. Context-Based Data Extraction: extract relevant financial details based on RequestType.
3. Priority Handling: prefer email content for classification, use attachments for numerical data.
4. Duplicate Detection: if the latest response in the thread contains generic text (e.g., "Thank you"), mark "DuplicateFlag": true.
5. Assign Request: route the request to the appropriate team or person.
6. Confidence Scoring: provide a confidence score (0-100%%).

### Classification Criteria
%s

### Extractable Fields
%s

### Email to Analyze
Subject: %s
Email Content: %s
Attachment Content: %s

### Expected JSON Response Format
You must return a single pure JSON object with no markdown formatting or extra characters, with a free-text justification in "context":
{
    "request_type": "<RequestType>",
    "sub_request_type": "<SubRequestType>",
    "DuplicateFlag": %t,
    "confidence_score": "<Confidence Score in %%>",
    "assigned_to": "<Team or Individual>",
    "role": "<Role Responsible>",
    "context": "<Explanation based on email and attachments>",
    "extracted_data": {
        "<Relevant Field 1>": "<Value>",
        "<Relevant Field 2>": "<Value>"
    }
}`

// BuildClassificationRequest assembles the model payload. The duplicate flag
// is computed here, from the body only: attachments are a data source, not a
// conversation thread. The criteria and extractable-field excerpts go into
// the prompt verbatim as indented JSON.
func BuildClassificationRequest(subject, body, attachmentText string, r *rules.Rules) ClassificationRequest {
	duplicate := DetectDuplicate(body)

	criteriaJSON, _ := json.MarshalIndent(r.Criteria, "", "    ")
	fieldsJSON, _ := json.MarshalIndent(r.ExtractableFields, "", "    ")

	promptAttachment := attachmentText
	if strings.TrimSpace(promptAttachment) == "" {
		promptAttachment = "No Attachment"
	}

	return ClassificationRequest{
		Subject:        subject,
		Body:           body,
		AttachmentText: attachmentText,
		Duplicate:      duplicate,
		System:         systemPrompt,
		Prompt: fmt.Sprintf(promptTemplate,
			string(criteriaJSON), string(fieldsJSON),
			subject, body, promptAttachment,
			duplicate),
	}
}
