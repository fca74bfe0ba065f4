package tutor

import (
	"fmt"
	"strings"

	"github.com/alokproc/geotutor/internal/vector"
)

// systemPrompt frames every completion. The tutor persona keeps answers at
// textbook level instead of free-wheeling LLM prose.
const systemPrompt = `You are an AI geography tutor specializing in NCERT Class 10 Geography.
Your role is to help students understand geographical concepts, processes, and phenomena.

Instructions:
1. Use the provided context from the NCERT textbook to answer questions
2. Provide clear, educational explanations suitable for Class 10 students
3. Include relevant examples and real-world applications when possible
4. If the context doesn't contain enough information, acknowledge this and provide general guidance
5. Encourage further learning and exploration of the topic
6. Use simple language that students can easily understand`

// noContextNotice is used when retrieval comes back empty, so the model
// knows not to invent textbook citations.
const noContextNotice = "No relevant information found in the geography textbook."

// sourceNote is appended to grounded answers.
const sourceNote = "*This answer is based on NCERT Class 10 Geography textbook content.*"

// buildContext renders retrieved chunks as numbered references.
func buildContext(results []vector.SearchResult) string {
	if len(results) == 0 {
		return noContextNotice
	}

	var b strings.Builder
	b.WriteString("Based on the NCERT Class 10 Geography textbook:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "Reference %d:\n%s\n\n", i+1, strings.TrimSpace(r.Content))
	}
	return strings.TrimSpace(b.String())
}

// buildUserPrompt combines the context block with the student's question.
func buildUserPrompt(contextBlock, question string) string {
	return fmt.Sprintf(`Context from NCERT Class 10 Geography textbook:
%s

Student Question: %s

Please provide a comprehensive answer based on the context provided. If the context is insufficient, provide what you can and suggest where the student might find more information.`, contextBlock, question)
}
