package application

import (
	"fmt"
	"strings"

	"data-sculptor/domain"
)

const feedbackSystemPrompt = `You are an expert reviewer of data-science code written in Jupyter notebooks.
The learner's code is annotated with 1-based line numbers in the form "<line> | <code>".

Give two kinds of feedback:
- "conceptual": short bullet points about the approach as a whole (correctness of the
  analysis, methodology, what is missing compared to the task). Do not repeat line issues here.
- "warnings": semantic or logical issues tied to specific lines (not syntax errors). For each
  give "start_line" and "end_line" (1-based, inclusive), a "message" of at most 150 characters
  naming the variables or calls involved, a longer "description" and a suggested "fix".

Report only real issues. When there is nothing to say, return empty lists.`

const localizeSystemPrompt = `You are a rigorous static-analysis assistant. You receive Python code annotated with
1-based line numbers in the form "<line> | <code>" and a numbered list of WARNINGS that are
known to be present in the code.

For every warning choose exactly one line range that best shows the issue and contains
explicit evidence of it, such as the offending identifier or call. Never invent new warnings.
If you cannot find convincing evidence for a warning, leave it out.

Return one object per localized warning with "warning_index" (the 1-based number from the
list), "start_line", "end_line" (1-based, inclusive) and a focused "message" of at most 150
characters explaining why the span violates the warning.`

const chatSystemPrompt = `You are a patient tutor helping a learner with data-science code in a Jupyter notebook.
Answer the learner's question about their current code. Refer to lines by number when useful,
explain the reasoning behind suggestions and keep answers focused.

--- CURRENT CODE ---
%s

--- GENERAL FEEDBACK ---
%s

--- LINE FEEDBACK ---
%s`

// numberLines prefixes each line with its 1-based number, shifted by offset.
func numberLines(doc domain.CodeDocument, offset int) string {
	var b strings.Builder
	for i := 0; i < doc.LineCount(); i++ {
		fmt.Fprintf(&b, "%d | %s\n", i+1+offset, doc.Line(i))
	}
	return b.String()
}

func feedbackUserPrompt(doc domain.CodeDocument, section *domain.ProfileSection) string {
	var b strings.Builder
	if section != nil {
		if section.ProfileDescription != "" {
			fmt.Fprintf(&b, "--- TASK ---\n%s\n\n", section.ProfileDescription)
		}
		fmt.Fprintf(&b, "--- SECTION %d ---\n%s\n\n", section.Index, section.Description)
		if section.Code != "" {
			fmt.Fprintf(&b, "--- REFERENCE SOLUTION ---\n%s\n\n", section.Code)
		}
	}
	fmt.Fprintf(&b, "--- CODE ---\n%s", numberLines(doc, 0))
	return b.String()
}

func localizeUserPrompt(doc domain.CodeDocument, warnings []domain.RawWarning) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- CODE ---\n%s\n--- WARNINGS ---\n", numberLines(doc, 0))
	for i, w := range warnings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, w.LLMDescription())
	}
	return b.String()
}

func chatSystem(code, summary string, warnings []domain.LocalizedWarning) string {
	if strings.TrimSpace(summary) == "" {
		summary = "(none)"
	}
	lines := make([]string, 0, len(warnings))
	for _, w := range warnings {
		lines = append(lines, w.LLMDescription())
	}
	lineFeedback := strings.Join(lines, "\n")
	if lineFeedback == "" {
		lineFeedback = "(none)"
	}
	return fmt.Sprintf(chatSystemPrompt, code, summary, lineFeedback)
}

// conceptualSummary renders conceptual points as a bullet list.
func conceptualSummary(points []string) string {
	var lines []string
	for _, p := range points {
		p = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(p), "-*•"))
		if p != "" {
			lines = append(lines, "- "+p)
		}
	}
	return strings.Join(lines, "\n")
}
