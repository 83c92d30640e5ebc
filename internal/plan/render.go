package plan

import (
	"fmt"
	"strings"

	"github.com/specdriven/specflow/pkg/models"
)

// Render emits the canonical plan markdown for a set of tasks. The output
// parses back to the same index, title, and dependency structure, which is
// what lets the handoff gate rewrite tasks.md without drift.
func Render(tasks []*models.ImplementationTask) string {
	var b strings.Builder
	b.WriteString("# Implementation Plan\n")

	for _, t := range tasks {
		fmt.Fprintf(&b, "\n## Task %d: %s\n", t.Index+1, t.Title)

		if t.Description != "" {
			b.WriteString("\n### Description\n")
			b.WriteString(t.Description)
			b.WriteString("\n")
		}
		if t.AcceptanceCriteria != "" {
			b.WriteString("\n### Acceptance Criteria\n")
			b.WriteString(t.AcceptanceCriteria)
			b.WriteString("\n")
		}

		b.WriteString("\n### Effort\n")
		b.WriteString(string(t.EstimatedEffort))
		b.WriteString("\n")

		if len(t.Dependencies) > 0 {
			b.WriteString("\n### Dependencies\n")
			refs := make([]string, len(t.Dependencies))
			for i, d := range t.Dependencies {
				refs[i] = fmt.Sprintf("%d", d+1)
			}
			b.WriteString(strings.Join(refs, ", "))
			b.WriteString("\n")
		}
	}
	return b.String()
}
