package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecRunner implements Runner using the git and gh command-line tools.
type ExecRunner struct {
	repoPath string
}

// NewRunner creates a runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return &ExecRunner{repoPath: repoPath}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(args ...string) error {
	_, err := r.run(args...)
	return err
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch() (string, error) {
	return r.run("rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(name string) (bool, error) {
	cmd := exec.Command("git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.repoPath
	if err := cmd.Run(); err != nil {
		// Exit code 1 means the branch doesn't exist, not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w", err)
	}
	return true, nil
}

// CreateAndCheckoutBranch creates and switches to a new branch.
func (r *ExecRunner) CreateAndCheckoutBranch(name string) error {
	return r.runSilent("checkout", "-b", name)
}

// CheckoutBranch switches to the specified branch.
func (r *ExecRunner) CheckoutBranch(name string) error {
	return r.runSilent("checkout", name)
}

// WriteFile writes content to a path inside the work tree, creating parent
// directories as needed.
func (r *ExecRunner) WriteFile(path, content string) error {
	full := filepath.Join(r.repoPath, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Add stages the specified files for commit.
func (r *ExecRunner) Add(paths ...string) error {
	return r.runSilent(append([]string{"add"}, paths...)...)
}

// Commit creates a new commit and returns its hash.
func (r *ExecRunner) Commit(message string) (string, error) {
	if err := r.runSilent("commit", "-m", message); err != nil {
		return "", err
	}
	return r.HeadHash()
}

// HasChanges returns true if there are uncommitted changes.
func (r *ExecRunner) HasChanges() (bool, error) {
	out, err := r.run("status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

// ShowFile returns the contents of a file at a specific ref. The bool is
// false when the file does not exist at that ref.
func (r *ExecRunner) ShowFile(ref, path string) (string, bool, error) {
	cmd := exec.Command("git", "show", ref+":"+path)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		text := string(out)
		if strings.Contains(text, "does not exist") || strings.Contains(text, "exists on disk, but not in") {
			return "", false, nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 128 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("git show %s:%s: %w: %s", ref, path, err, text)
	}
	return string(out), true, nil
}

// Log returns the branch's history, newest first.
func (r *ExecRunner) Log(branch string, limit int) ([]Commit, error) {
	args := []string{"log", "--format=%H%x00%s"}
	if limit > 0 {
		args = append(args, fmt.Sprintf("-n%d", limit))
	}
	args = append(args, branch)
	out, err := r.run(args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		hash, msg, _ := strings.Cut(line, "\x00")
		commits = append(commits, Commit{Hash: hash, Message: msg})
	}
	return commits, nil
}

// HeadHash returns the hash of the current HEAD.
func (r *ExecRunner) HeadHash() (string, error) {
	return r.run("rev-parse", "HEAD")
}

// Push pushes the branch to the default remote, setting upstream on first
// push.
func (r *ExecRunner) Push(branch string) error {
	return r.runSilent("push", "-u", "origin", branch)
}

// OpenPullRequest opens a pull request with the gh CLI and returns its URL.
func (r *ExecRunner) OpenPullRequest(branch, title, body string) (string, error) {
	cmd := exec.Command("gh", "pr", "create", "--head", branch, "--title", title, "--body", body)
	cmd.Dir = r.repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("gh pr create: %w: %s", err, string(out))
	}
	return strings.TrimSpace(string(out)), nil
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
