package research

import (
	"fmt"
	"strings"
)

// SearchToolName is the only tool exposed to the model.
const SearchToolName = "search"

var searchTool = ToolSpec{
	Name:        SearchToolName,
	Description: "Search the web. Returns short excerpts with their source URL. Use targeted queries such as the course catalog entry, syllabus, student reviews or instructor ratings.",
	Params: []ToolParam{
		{Name: "query", Type: "string", Description: "the search query", Required: true},
	},
}

const finalAnswerNudge = "You have no searches left. Reply now with only the JSON assessment object, based on the evidence gathered so far."

// DefaultInstruction is the opening user message for a course.
func DefaultInstruction(courseID string) string {
	return fmt.Sprintf("Evaluate the class %s", courseID)
}

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You research university courses and rate how difficult they are for students.\n\n")
	b.WriteString("Use the search tool to triangulate evidence: the official catalog entry and syllabus for credit hours and prerequisites, ")
	b.WriteString("then student discussions and instructor ratings for workload, exams, projects and pace. ")
	b.WriteString("Prefer several focused queries over one broad one.\n\n")
	b.WriteString("When you have enough evidence, stop calling tools and reply with a single JSON object and nothing else. ")
	b.WriteString("It must validate against this JSON Schema:\n\n")
	b.Write(assessmentSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- score, creditHours, summary and timeLoadHours are required.\n")
	b.WriteString("- evidenceSnippets must be direct quotes from search results, each followed by its source.\n")
	b.WriteString("- If the searches found little or nothing relevant, still answer with your best estimate and set confidence to 0.4 or lower.\n")
	b.WriteString("- Never invent prerequisites; leave the list empty when unknown.\n")
	return b.String()
}
