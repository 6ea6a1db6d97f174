// Package prompt builds the prompts sent to the generation service. Each
// builder pins a JSON response contract that the matching stage parses.
package prompt

import (
	"fmt"
	"strings"

	"concept-digest-be/internal/entity"
	"concept-digest-be/pkg/digest"
	"concept-digest-be/pkg/llm"
)

const extractorSystem = "You break complex articles into digestible sections and identify the concepts a reader must understand."

// ExtractionBuilder asks for sections and candidate concepts in one call.
type ExtractionBuilder struct {
	Text        string
	MinSections int
	MaxSections int
	MaxConcepts int
}

func (b ExtractionBuilder) Messages() []llm.Message {
	var prompt strings.Builder

	prompt.WriteString("<task>\n")
	fmt.Fprintf(&prompt, "Break the article into %d-%d main sections. Give each section a clear, descriptive title and a 1-2 sentence summary.\n", b.MinSections, b.MaxSections)
	fmt.Fprintf(&prompt, "Then identify up to %d complex, abstract or unfamiliar concepts from the article. ", b.MaxConcepts)
	prompt.WriteString("For each concept give a 2-4 word name, a coarse domain (e.g. \"Databases\", \"Machine Learning\", \"Web Development\") and a 2-3 sentence plain explanation.\n")
	prompt.WriteString("</task>\n\n")

	prompt.WriteString("<response_format>\n")
	prompt.WriteString("Respond with a single JSON object and nothing else:\n")
	prompt.WriteString(`{"sections":[{"title":"...","summary":"..."}],"concepts":[{"name":"...","domain":"...","explanation":"..."}]}`)
	prompt.WriteString("\n</response_format>\n\n")

	prompt.WriteString("<article>\n")
	prompt.WriteString(b.Text)
	prompt.WriteString("\n</article>\n")

	return []llm.Message{
		{Role: "system", Content: extractorSystem},
		{Role: "user", Content: prompt.String()},
	}
}

// PersonalizationBuilder asks for one analogy tailored to the reader.
type PersonalizationBuilder struct {
	Concept digest.Concept
	Profile *entity.UserProfile
}

func (b PersonalizationBuilder) Messages() []llm.Message {
	var system strings.Builder
	system.WriteString("You explain concepts using concrete analogies drawn from the reader's own life.\n\n")
	system.WriteString("<reader_profile>\n")
	system.WriteString(FormatProfile(b.Profile))
	system.WriteString("</reader_profile>\n")

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "<concept name=%q domain=%q>\n%s\n</concept>\n\n", b.Concept.Name, b.Concept.Domain, b.Concept.Explanation)
	if b.Concept.RelatedTo != "" {
		fmt.Fprintf(&prompt, "The reader already learned %q. Open the analogy by connecting to it, e.g. \"Remember %s? This builds on that by...\"\n\n", b.Concept.RelatedTo, b.Concept.RelatedTo)
	}
	prompt.WriteString("Write one analogy of 2-4 sentences that fits the reader's background and interests.\n")
	prompt.WriteString(`Respond with a single JSON object: {"analogy":"..."}`)

	return []llm.Message{
		{Role: "system", Content: system.String()},
		{Role: "user", Content: prompt.String()},
	}
}

// QuestionBuilder asks for recall questions over the whole run.
type QuestionBuilder struct {
	Sections []digest.Section
	Concepts []digest.Concept
	Count    int
}

func (b QuestionBuilder) Messages() []llm.Message {
	var prompt strings.Builder

	prompt.WriteString("<sections>\n")
	for i, s := range b.Sections {
		fmt.Fprintf(&prompt, "%d. %s: %s\n", i+1, s.Title, s.Summary)
	}
	prompt.WriteString("</sections>\n\n")

	prompt.WriteString("<concepts>\n")
	for _, c := range b.Concepts {
		fmt.Fprintf(&prompt, "- %s (%s): %s\n", c.Name, c.Domain, c.Explanation)
	}
	prompt.WriteString("</concepts>\n\n")

	fmt.Fprintf(&prompt, "Generate %d active recall questions that test comprehension of the key ideas above. Make them specific, not generic. ", b.Count)
	prompt.WriteString("Name the concept each question targets when there is one.\n")
	prompt.WriteString(`Respond with a single JSON object: {"questions":[{"question":"...","concept":"..."}]}`)

	return []llm.Message{
		{Role: "system", Content: "You create active recall questions."},
		{Role: "user", Content: prompt.String()},
	}
}

func FormatProfile(p *entity.UserProfile) string {
	return fmt.Sprintf("Background: %s\nInterests: %s\nLearning style: %s\nTechnical level: %s\n",
		orUnspecified(p.Background),
		orUnspecified(p.Interests),
		orUnspecified(p.LearningStyle),
		orUnspecified(p.TechnicalLevel),
	)
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}

// ExtractJSON returns the outermost {...} span of a model response, which
// tolerates leading prose and code fences. Empty when there is none.
func ExtractJSON(response string) string {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return ""
	}

	return response[startIdx : endIdx+1]
}
