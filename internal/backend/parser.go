package backend

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Known object fields that may wrap the dialogue array. Checked in order.
var wrapperFields = []string{"dialogue", "dialogues", "messages", "lines", "conversation"}

// rawLine mirrors the loose upstream entry shape. The service has shipped
// several field spellings over time; all are accepted.
type rawLine struct {
	SpeakerID   string `json:"speaker_id"`
	ID          string `json:"id"`
	Speaker     string `json:"speaker"`
	SpeakerName string `json:"speaker_name"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	Text        string `json:"text"`
	Content     string `json:"content"`
	Sequence    int    `json:"sequence"`
	Order       int    `json:"order"`
}

// parseDialogue normalizes the service's loosely structured response text into
// an ordered batch of DialogueLine. Accepted shapes: a markdown-fenced JSON
// payload, a bare JSON array, or an object holding the array under one of the
// known wrapper fields. Anything else is an UnparseableResponseError.
//
// Parsing is all-or-nothing: an entry that resolves no message text fails the
// whole batch rather than silently truncating it.
func parseDialogue(text string) ([]DialogueLine, error) {
	payload := strings.TrimSpace(stripFence(text))
	if payload == "" {
		return nil, &UnparseableResponseError{Reason: "empty response"}
	}

	raw, err := extractArray(payload)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, &UnparseableResponseError{Reason: "dialogue array is empty"}
	}

	lines := make([]DialogueLine, 0, len(raw))
	for i, entry := range raw {
		line, convErr := convertLine(entry, i)
		if convErr != nil {
			return nil, convErr
		}
		lines = append(lines, line)
	}

	return lines, nil
}

// stripFence removes a surrounding markdown code fence, with or without a
// language tag, leaving the inner payload untouched.
func stripFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}

	start := strings.Index(trimmed, "\n")
	end := strings.LastIndex(trimmed, "\n```")
	if start < 0 || end <= start {
		return trimmed
	}
	return trimmed[start+1 : end]
}

// extractArray locates the dialogue entry array within the payload.
func extractArray(payload string) ([]rawLine, error) {
	if strings.HasPrefix(payload, "[") {
		var arr []rawLine
		if err := json.Unmarshal([]byte(payload), &arr); err != nil {
			return nil, &UnparseableResponseError{Reason: fmt.Sprintf("bad dialogue array: %v", err)}
		}
		return arr, nil
	}

	if strings.HasPrefix(payload, "{") {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &obj); err != nil {
			return nil, &UnparseableResponseError{Reason: fmt.Sprintf("bad dialogue object: %v", err)}
		}
		for _, field := range wrapperFields {
			rawField, ok := obj[field]
			if !ok {
				continue
			}
			var arr []rawLine
			if err := json.Unmarshal(rawField, &arr); err != nil {
				return nil, &UnparseableResponseError{
					Reason: fmt.Sprintf("field %q is not a dialogue array: %v", field, err),
				}
			}
			return arr, nil
		}
		return nil, &UnparseableResponseError{Reason: "no known dialogue field in object"}
	}

	return nil, &UnparseableResponseError{Reason: "response is neither array nor object"}
}

// convertLine maps one raw entry to a DialogueLine. index is the 0-based
// position in the parsed array, used for sequence defaulting.
func convertLine(entry rawLine, index int) (DialogueLine, error) {
	text := firstNonEmpty(entry.Message, entry.Text, entry.Content)
	if strings.TrimSpace(text) == "" {
		return DialogueLine{}, &UnparseableResponseError{
			Reason: fmt.Sprintf("entry %d has no message text", index),
		}
	}

	sequence := entry.Sequence
	if sequence == 0 {
		sequence = entry.Order
	}
	if sequence == 0 {
		sequence = index + 1
	}

	return DialogueLine{
		SpeakerID:   firstNonEmpty(entry.SpeakerID, entry.ID),
		SpeakerName: firstNonEmpty(entry.SpeakerName, entry.Speaker, entry.Name),
		Text:        strings.TrimSpace(text),
		Sequence:    sequence,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
