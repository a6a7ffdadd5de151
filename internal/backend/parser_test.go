package backend

import (
	"errors"
	"testing"
)

func TestParseDialogueShapes(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTexts []string
	}{
		{
			name:      "bare array",
			input:     `[{"speaker":"Bubbles","message":"hi"},{"speaker":"Finn","message":"hello"}]`,
			wantTexts: []string{"hi", "hello"},
		},
		{
			name: "fenced with language tag",
			input: "```json\n" +
				`[{"speaker":"Bubbles","message":"hi"}]` +
				"\n```",
			wantTexts: []string{"hi"},
		},
		{
			name: "fenced without language tag",
			input: "```\n" +
				`[{"speaker":"Bubbles","text":"hi"}]` +
				"\n```",
			wantTexts: []string{"hi"},
		},
		{
			name:      "object wrapped under dialogue",
			input:     `{"dialogue":[{"speaker":"Bubbles","message":"hi"}]}`,
			wantTexts: []string{"hi"},
		},
		{
			name:      "object wrapped under messages",
			input:     `{"messages":[{"name":"Finn","content":"hello there"}]}`,
			wantTexts: []string{"hello there"},
		},
		{
			name:      "object wrapped under lines",
			input:     `{"lines":[{"speaker_name":"Gil","text":"blub"}]}`,
			wantTexts: []string{"blub"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, err := parseDialogue(tt.input)
			if err != nil {
				t.Fatalf("parseDialogue() error = %v", err)
			}
			if len(lines) != len(tt.wantTexts) {
				t.Fatalf("got %d lines, want %d", len(lines), len(tt.wantTexts))
			}
			for i, want := range tt.wantTexts {
				if lines[i].Text != want {
					t.Errorf("line %d text = %q, want %q", i, lines[i].Text, want)
				}
			}
		})
	}
}

func TestParseDialogueSequenceDefaulting(t *testing.T) {
	// Upstream omits ordering entirely; sequences must become 1..n.
	input := `[{"speaker":"A","message":"one"},{"speaker":"B","message":"two"},{"speaker":"C","message":"three"}]`

	lines, err := parseDialogue(input)
	if err != nil {
		t.Fatalf("parseDialogue() error = %v", err)
	}

	seen := make(map[int]bool)
	for i, line := range lines {
		if line.Sequence != i+1 {
			t.Errorf("line %d sequence = %d, want %d", i, line.Sequence, i+1)
		}
		if seen[line.Sequence] {
			t.Errorf("duplicate sequence %d", line.Sequence)
		}
		seen[line.Sequence] = true
	}
}

func TestParseDialogueExplicitSequencePreserved(t *testing.T) {
	input := `[{"speaker":"A","message":"later","sequence":2},{"speaker":"B","message":"earlier","sequence":1}]`

	lines, err := parseDialogue(input)
	if err != nil {
		t.Fatalf("parseDialogue() error = %v", err)
	}
	if lines[0].Sequence != 2 || lines[1].Sequence != 1 {
		t.Errorf("sequences = %d,%d, want 2,1", lines[0].Sequence, lines[1].Sequence)
	}
}

func TestParseDialogueOrderFieldFallback(t *testing.T) {
	input := `[{"speaker":"A","message":"hi","order":7}]`

	lines, err := parseDialogue(input)
	if err != nil {
		t.Fatalf("parseDialogue() error = %v", err)
	}
	if lines[0].Sequence != 7 {
		t.Errorf("sequence = %d, want 7", lines[0].Sequence)
	}
}

func TestParseDialogueFailures(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty input", input: ""},
		{name: "plain prose", input: "the fish are talking about kelp"},
		{name: "object without known field", input: `{"result":[{"speaker":"A","message":"hi"}]}`},
		{name: "empty array", input: `[]`},
		{name: "entry missing text fails whole batch", input: `[{"speaker":"A","message":"hi"},{"speaker":"B"}]`},
		{name: "entry with blank text", input: `[{"speaker":"A","message":"   "}]`},
		{name: "malformed json", input: `[{"speaker":"A","message":"hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseDialogue(tt.input)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var parseErr *UnparseableResponseError
			if !errors.As(err, &parseErr) {
				t.Errorf("error = %T, want *UnparseableResponseError", err)
			}
		})
	}
}

func TestParseDialogueSpeakerFieldFallbacks(t *testing.T) {
	input := `[{"speaker_id":"p1","speaker_name":"Bubbles","message":"hi"},{"id":"p2","speaker":"Finn","text":"yo"}]`

	lines, err := parseDialogue(input)
	if err != nil {
		t.Fatalf("parseDialogue() error = %v", err)
	}

	if lines[0].SpeakerID != "p1" || lines[0].SpeakerName != "Bubbles" {
		t.Errorf("line 0 = %+v, want speaker p1/Bubbles", lines[0])
	}
	if lines[1].SpeakerID != "p2" || lines[1].SpeakerName != "Finn" {
		t.Errorf("line 1 = %+v, want speaker p2/Finn", lines[1])
	}
}
