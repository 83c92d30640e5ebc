// Package plan parses approved implementation-plan markdown into
// dependency-ordered implementation tasks and answers readiness queries
// over the resulting DAG.
package plan

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/specdriven/specflow/pkg/models"
)

// taskHeaderRe matches the two task header forms the planning agent emits:
// "## Task 3: Title" (optionally without "Task" or the colon) and "3. Title".
var taskHeaderRe = regexp.MustCompile(`^(?:#{2,3}\s*(?:Task\s*)?(\d+)[.:]?\s*(.*)|(\d+)\.\s+(.+))$`)

var depNumberRe = regexp.MustCompile(`\d+`)

type section int

const (
	sectionDescription section = iota
	sectionAcceptance
	sectionEffort
	sectionDependencies
)

// Parse turns implementation-plan markdown into ordered tasks. The order of
// appearance defines each task's index; dependency references in the text are
// 1-based task numbers and become 0-based indices. A reference to a task
// number that does not exist, a self-dependency, or a dependency cycle fails
// with ErrPlanParse.
func Parse(specTaskID, markdown string) ([]*models.ImplementationTask, error) {
	var tasks []*models.ImplementationTask
	var current *models.ImplementationTask
	sect := sectionDescription
	now := time.Now()

	flush := func() {
		if current != nil {
			tasks = append(tasks, current)
			current = nil
		}
	}

	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if m := taskHeaderRe.FindStringSubmatch(line); m != nil {
			title := m[2]
			if title == "" {
				title = m[4]
			}
			title = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(title), ":"))
			if title == "" {
				// Bare "## Task 3" header; the next description line
				// would be a poor title, so reject outright.
				return nil, fmt.Errorf("%w: task header without title: %q", models.ErrPlanParse, line)
			}
			flush()
			current = &models.ImplementationTask{
				ID:              models.NewImplementationTaskID(),
				SpecTaskID:      specTaskID,
				Index:           len(tasks),
				Title:           title,
				EstimatedEffort: models.EffortMedium,
				Status:          models.ImplementationStatusPending,
				CreatedAt:       now,
			}
			sect = sectionDescription
			continue
		}

		if current == nil {
			// Preamble before the first task header.
			continue
		}

		if s, ok := sectionFor(line); ok {
			sect = s
			continue
		}

		switch sect {
		case sectionDescription:
			current.Description = joinLine(current.Description, line)
		case sectionAcceptance:
			current.AcceptanceCriteria = joinLine(current.AcceptanceCriteria, line)
		case sectionEffort:
			current.EstimatedEffort = parseEffort(line)
		case sectionDependencies:
			for _, numStr := range depNumberRe.FindAllString(line, -1) {
				n, err := strconv.Atoi(numStr)
				if err != nil || n < 1 {
					return nil, fmt.Errorf("%w: bad dependency reference %q in task %d", models.ErrPlanParse, numStr, current.Index+1)
				}
				if !current.DependsOn(n - 1) {
					current.Dependencies = append(current.Dependencies, n-1)
				}
			}
		}
	}
	flush()

	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: no tasks found in plan", models.ErrPlanParse)
	}

	if err := validate(tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// sectionFor recognizes section headings inside a task block. Only heading
// lines switch sections; ordinary content never does.
func sectionFor(line string) (section, bool) {
	if !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "**") {
		return 0, false
	}
	l := strings.ToLower(strings.Trim(line, "#* \t:"))
	switch {
	case strings.Contains(l, "description") || strings.Contains(l, "overview"):
		return sectionDescription, true
	case strings.Contains(l, "acceptance") || strings.Contains(l, "criteria"):
		return sectionAcceptance, true
	case strings.Contains(l, "effort") || strings.Contains(l, "size"):
		return sectionEffort, true
	case strings.Contains(l, "dependencies") || strings.Contains(l, "depends"):
		return sectionDependencies, true
	default:
		return 0, false
	}
}

func parseEffort(line string) models.EstimatedEffort {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, "small") || strings.Contains(l, "minor"):
		return models.EffortSmall
	case strings.Contains(l, "large") || strings.Contains(l, "major"):
		return models.EffortLarge
	default:
		return models.EffortMedium
	}
}

func joinLine(existing, line string) string {
	if existing == "" {
		return line
	}
	return existing + " " + line
}

// validate checks that every dependency resolves to a real task index and
// that the dependency relation is acyclic.
func validate(tasks []*models.ImplementationTask) error {
	n := len(tasks)
	for _, t := range tasks {
		for _, d := range t.Dependencies {
			if d < 0 || d >= n {
				return fmt.Errorf("%w: task %d depends on nonexistent task %d", models.ErrPlanParse, t.Index+1, d+1)
			}
			if d == t.Index {
				return fmt.Errorf("%w: task %d depends on itself", models.ErrPlanParse, t.Index+1)
			}
		}
	}
	if cycleExists(tasks) {
		return fmt.Errorf("%w: dependency cycle detected", models.ErrPlanParse)
	}
	return nil
}
