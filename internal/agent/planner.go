package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/specdriven/specflow/pkg/models"
)

// Documents are the three markdown artifacts a planning pass produces.
type Documents struct {
	Requirements       string
	Design             string
	ImplementationPlan string
}

// Planner turns a spec task's prompt into spec documents. Implementations
// must honor previously requested changes when regenerating.
type Planner interface {
	GenerateSpecs(ctx context.Context, task *models.SpecTask) (*Documents, error)
}

const requirementsSystem = `You are a senior software engineer writing a requirements
specification. Produce a complete markdown requirements document for the change the
user describes: user stories, acceptance criteria, edge cases, and explicit non-goals.
Output only the document.`

const designSystem = `You are a senior software engineer writing a technical design.
Given a change request and its requirements document, produce a markdown design:
affected components, data model changes, interfaces, and error handling. Output only
the document.`

const planSystem = `You are a senior software engineer writing an implementation plan.
Given a change request, requirements, and design, break the work into numbered tasks.
Use this exact format for each task:

## Task N: Title

### Description
What to build.

### Acceptance Criteria
- criterion

### Effort
small | medium | large

### Dependencies
Comma-separated task numbers this task depends on, or "none".

Tasks are numbered from 1. Output only the document.`

// AnthropicPlanner generates spec documents with the Anthropic API, one call
// per document so each later document can build on the earlier ones.
type AnthropicPlanner struct {
	client *Client
}

// NewAnthropicPlanner creates a planner over the given client.
func NewAnthropicPlanner(client *Client) *AnthropicPlanner {
	return &AnthropicPlanner{client: client}
}

// GenerateSpecs produces requirements, design, and implementation plan for
// the task. Requested changes from a rejected review round are folded into
// the prompt so the regeneration addresses them.
func (p *AnthropicPlanner) GenerateSpecs(ctx context.Context, task *models.SpecTask) (*Documents, error) {
	prompt := task.OriginalPrompt
	if len(task.RequestedChanges) > 0 {
		var b strings.Builder
		b.WriteString(prompt)
		b.WriteString("\n\nA reviewer requested the following changes to the previous revision:\n")
		for _, c := range task.RequestedChanges {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		prompt = b.String()
	}

	requirements, err := p.client.complete(ctx, requirementsSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate requirements: %w", err)
	}

	design, err := p.client.complete(ctx, designSystem,
		fmt.Sprintf("Change request:\n%s\n\nRequirements:\n%s", prompt, requirements))
	if err != nil {
		return nil, fmt.Errorf("generate design: %w", err)
	}

	planDoc, err := p.client.complete(ctx, planSystem,
		fmt.Sprintf("Change request:\n%s\n\nRequirements:\n%s\n\nDesign:\n%s", prompt, requirements, design))
	if err != nil {
		return nil, fmt.Errorf("generate implementation plan: %w", err)
	}

	return &Documents{
		Requirements:       requirements,
		Design:             design,
		ImplementationPlan: planDoc,
	}, nil
}

var _ Planner = (*AnthropicPlanner)(nil)
