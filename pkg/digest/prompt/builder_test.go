package prompt

import (
	"strings"
	"testing"

	"concept-digest-be/internal/entity"
	"concept-digest-be/pkg/digest"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":{\"b\":2}}\n```", `{"a":{"b":2}}`},
		{"prose", `Sure! Here it is: {"a":1} hope that helps`, `{"a":1}`},
		{"none", "no json here", ""},
		{"reversed", "} {", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.response); got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPersonalizationBuilder_RelatedConcept(t *testing.T) {
	profile := &entity.UserProfile{Background: "line cook", Interests: "football"}
	msgs := PersonalizationBuilder{
		Concept: digest.Concept{Name: "B+ tree", Domain: "databases", Explanation: "x", RelatedTo: "B-tree"},
		Profile: profile,
	}.Messages()

	if len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "line cook") {
		t.Errorf("system prompt misses the profile: %q", msgs[0].Content)
	}
	if !strings.Contains(msgs[0].Content, "Learning style: Not specified") {
		t.Errorf("blank profile fields should read as unspecified")
	}
	if !strings.Contains(msgs[1].Content, `"B-tree"`) {
		t.Errorf("user prompt should reference the related concept")
	}
}

func TestExtractionBuilder_Bounds(t *testing.T) {
	msgs := ExtractionBuilder{Text: "ARTICLE", MinSections: 3, MaxSections: 5, MaxConcepts: 4}.Messages()
	body := msgs[len(msgs)-1].Content
	for _, want := range []string{"3-5 main sections", "up to 4", "ARTICLE", `"concepts"`} {
		if !strings.Contains(body, want) {
			t.Errorf("extraction prompt missing %q", want)
		}
	}
}
