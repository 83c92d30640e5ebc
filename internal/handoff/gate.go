// Package handoff implements the approval/handoff gate: committing approved
// spec documents to a git branch and flipping the spec task into the
// implementation phase. The git commit is the one external side effect in
// the engine that is not trivially retryable, so every step re-checks
// repository state before writing and records partial progress on failure.
package handoff

import (
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/specdriven/specflow/internal/git"
	"github.com/specdriven/specflow/internal/session"
	"github.com/specdriven/specflow/internal/state"
	"github.com/specdriven/specflow/pkg/models"
)

// Config controls one handoff execution.
type Config struct {
	// BranchPrefix is prepended to the spec task ID to form the branch
	// name. Ignored when the task already has a branch.
	BranchPrefix string
	// Push pushes the branch to the default remote after committing.
	Push bool
	// OpenPullRequest opens a pull request for the branch. Implies Push.
	OpenPullRequest bool
}

// DefaultBranchPrefix names handoff branches when no prefix is configured.
const DefaultBranchPrefix = "spectask/"

// Store is the slice of persistence the gate needs.
type Store interface {
	state.SpecTaskStore
	state.ActivityStore
}

// Gate executes spec document handoffs.
type Gate struct {
	store  Store
	runner git.Runner
	tree   *session.Tree
	log    zerolog.Logger
	now    func() time.Time
}

// NewGate creates a Gate.
func NewGate(store Store, runner git.Runner, tree *session.Tree, log zerolog.Logger) *Gate {
	return &Gate{store: store, runner: runner, tree: tree, log: log, now: time.Now}
}

// specDoc is one renderable document of the handoff.
type specDoc struct {
	name    string
	content string
}

// ExecuteHandoff commits the approved spec documents to the task's branch,
// optionally pushes and opens a pull request, then transitions the task to
// implementation_start and fans out the first implementation sessions.
//
// Execution is at-least-once with idempotent content: a file whose committed
// content already matches is skipped, so retries after a partial failure
// commit only what is missing and never duplicate commits. Any failure
// leaves the task in handoff_failed with the partial result recorded and
// returns a HandoffError describing exactly what was committed.
func (g *Gate) ExecuteHandoff(specTaskID string, cfg Config) (*models.SpecTask, error) {
	task, err := g.store.GetSpecTask(specTaskID)
	if err != nil {
		return nil, err
	}
	if task.HandoffState == models.HandoffStateHandedOff {
		return task, nil
	}
	if task.Status != models.SpecTaskStatusSpecApproved {
		return nil, fmt.Errorf("spec task %s is %s, handoff requires spec_approved: %w",
			specTaskID, task.Status, models.ErrInvalidState)
	}

	task.HandoffState = models.HandoffStateCommitting
	task.UpdatedAt = g.now()
	if err := g.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}

	branch := task.BranchName
	if branch == "" {
		prefix := cfg.BranchPrefix
		if prefix == "" {
			prefix = DefaultBranchPrefix
		}
		branch = prefix + task.ID
	}
	if err := g.checkoutBranch(branch); err != nil {
		return nil, g.fail(task, "branch", branch, nil, "", err)
	}

	docs := []specDoc{
		{"requirements.md", task.RequirementsSpec},
		{"design.md", task.TechnicalDesign},
		{"implementation-plan.md", task.ImplementationPlan},
	}

	var committed []string
	var lastHash string
	for _, doc := range docs {
		filePath := path.Join("specs", task.ID, doc.name)

		existing, exists, err := g.runner.ShowFile(branch, filePath)
		if err != nil {
			return nil, g.fail(task, "inspect", branch, committed, lastHash, err)
		}
		if exists && existing == doc.content {
			committed = append(committed, filePath)
			continue
		}

		if err := g.runner.WriteFile(filePath, doc.content); err != nil {
			return nil, g.fail(task, "write", branch, committed, lastHash, err)
		}
		if err := g.runner.Add(filePath); err != nil {
			return nil, g.fail(task, "stage", branch, committed, lastHash, err)
		}
		hash, err := g.runner.Commit(fmt.Sprintf("Add %s for %s", doc.name, task.Name))
		if err != nil {
			return nil, g.fail(task, "commit", branch, committed, lastHash, err)
		}
		committed = append(committed, filePath)
		lastHash = hash
	}
	if lastHash == "" {
		// Everything was already committed on a previous attempt.
		if hash, err := g.runner.HeadHash(); err == nil {
			lastHash = hash
		}
	}

	if cfg.Push || cfg.OpenPullRequest {
		if err := g.runner.Push(branch); err != nil {
			return nil, g.fail(task, "push", branch, committed, lastHash, err)
		}
		task.Pushed = true
	}
	if cfg.OpenPullRequest && task.PullRequestURL == "" {
		url, err := g.runner.OpenPullRequest(branch,
			fmt.Sprintf("Spec: %s", task.Name),
			fmt.Sprintf("Approved specification documents for %s.", task.Name))
		if err != nil {
			return nil, g.fail(task, "pull_request", branch, committed, lastHash, err)
		}
		task.PullRequestURL = url
	}

	now := g.now()
	task.BranchName = branch
	task.LastCommitHash = lastHash
	task.HandoffState = models.HandoffStateHandedOff
	task.Status = models.SpecTaskStatusImplementationStart
	task.Phase = models.PhaseImplementation
	task.UpdatedAt = now
	if err := g.store.UpdateSpecTask(task); err != nil {
		return nil, err
	}

	g.recordActivity(task, models.ActivityPhaseTransition,
		fmt.Sprintf("specs handed off to %s at %s, entering implementation", branch, shortHash(lastHash)))
	g.log.Info().
		Str("spec_task_id", task.ID).
		Str("branch", branch).
		Str("commit", shortHash(lastHash)).
		Msg("handoff complete")

	if _, err := g.tree.CreateImplementationSessions(task.ID, task.ProjectPath, task.WorkspaceConfig, true); err != nil {
		return task, err
	}
	return task, nil
}

// checkoutBranch moves the repository onto the handoff branch, creating it
// on first use.
func (g *Gate) checkoutBranch(branch string) error {
	exists, err := g.runner.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		return g.runner.CheckoutBranch(branch)
	}
	return g.runner.CreateAndCheckoutBranch(branch)
}

// fail records the partial result on the task and wraps the cause in a
// HandoffError. Nothing is rolled back: committed files stay committed so a
// retry can resume.
func (g *Gate) fail(task *models.SpecTask, stage, branch string, committed []string, lastHash string, cause error) error {
	task.HandoffState = models.HandoffStateFailed
	task.BranchName = branch
	if lastHash != "" {
		task.LastCommitHash = lastHash
	}
	task.UpdatedAt = g.now()
	if err := g.store.UpdateSpecTask(task); err != nil {
		g.log.Error().Err(err).Str("spec_task_id", task.ID).Msg("failed to record handoff failure")
	}

	g.log.Error().
		Err(cause).
		Str("spec_task_id", task.ID).
		Str("stage", stage).
		Int("files_committed", len(committed)).
		Msg("handoff failed")
	return &models.HandoffError{
		SpecTaskID:     task.ID,
		Stage:          stage,
		CommittedFiles: committed,
		CommitHash:     lastHash,
		Err:            cause,
	}
}

func (g *Gate) recordActivity(task *models.SpecTask, typ models.ActivityType, msg string) {
	err := g.store.AppendActivity(&models.ActivityLogEntry{
		ID:           models.NewActivityID(),
		SpecTaskID:   task.ID,
		ActivityType: typ,
		Message:      msg,
		Timestamp:    g.now(),
	})
	if err != nil {
		g.log.Error().Err(err).Msg("failed to append activity")
	}
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
