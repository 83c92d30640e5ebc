package git

import (
	"fmt"
	"sync"
)

// Fake is an in-memory Runner for tests. It models branches, committed file
// content, and history, and can inject failures at the commit, push, and
// pull-request steps to exercise partial-handoff recovery.
type Fake struct {
	mu        sync.Mutex
	branch    string
	branches  map[string]bool
	committed map[string]map[string]string // branch -> path -> content
	commits   map[string][]Commit          // oldest first
	pending   map[string]string            // written, not staged
	staged    map[string]string
	seq       int

	// FailAfterCommits makes Commit fail once the current branch already
	// holds that many commits. Negative disables the failure.
	FailAfterCommits int
	FailPush         bool
	FailPR           bool

	Pushed       []string
	PullRequests []string
}

// NewFake creates a Fake positioned on the main branch.
func NewFake() *Fake {
	return &Fake{
		branch:           "main",
		branches:         map[string]bool{"main": true},
		committed:        map[string]map[string]string{"main": {}},
		commits:          map[string][]Commit{},
		pending:          map[string]string{},
		staged:           map[string]string{},
		FailAfterCommits: -1,
	}
}

func (f *Fake) CurrentBranch() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branch, nil
}

func (f *Fake) BranchExists(name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.branches[name], nil
}

func (f *Fake) CreateAndCheckoutBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branches[name] {
		return fmt.Errorf("branch %s already exists", name)
	}
	f.branches[name] = true
	files := map[string]string{}
	for p, c := range f.committed[f.branch] {
		files[p] = c
	}
	f.committed[name] = files
	f.commits[name] = append([]Commit(nil), f.commits[f.branch]...)
	f.branch = name
	return nil
}

func (f *Fake) CheckoutBranch(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.branches[name] {
		return fmt.Errorf("branch %s does not exist", name)
	}
	f.branch = name
	return nil
}

func (f *Fake) WriteFile(path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[path] = content
	return nil
}

func (f *Fake) Add(paths ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range paths {
		content, ok := f.pending[p]
		if !ok {
			return fmt.Errorf("pathspec %s did not match any files", p)
		}
		f.staged[p] = content
		delete(f.pending, p)
	}
	return nil
}

func (f *Fake) Commit(message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAfterCommits >= 0 && len(f.commits[f.branch]) >= f.FailAfterCommits {
		return "", fmt.Errorf("simulated commit failure on %s", f.branch)
	}
	if len(f.staged) == 0 {
		return "", fmt.Errorf("nothing to commit")
	}
	for p, c := range f.staged {
		f.committed[f.branch][p] = c
	}
	f.staged = map[string]string{}
	f.seq++
	hash := fmt.Sprintf("%040d", f.seq)
	f.commits[f.branch] = append(f.commits[f.branch], Commit{Hash: hash, Message: message})
	return hash, nil
}

func (f *Fake) HasChanges() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)+len(f.staged) > 0, nil
}

func (f *Fake) ShowFile(ref, path string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.committed[ref]
	if !ok {
		return "", false, fmt.Errorf("unknown ref %s", ref)
	}
	content, ok := files[path]
	return content, ok, nil
}

func (f *Fake) Log(branch string, limit int) ([]Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.commits[branch]
	var out []Commit
	for i := len(history) - 1; i >= 0; i-- {
		out = append(out, history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) HeadHash() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history := f.commits[f.branch]
	if len(history) == 0 {
		return "", fmt.Errorf("no commits on %s", f.branch)
	}
	return history[len(history)-1].Hash, nil
}

func (f *Fake) Push(branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPush {
		return fmt.Errorf("simulated push failure")
	}
	f.Pushed = append(f.Pushed, branch)
	return nil
}

func (f *Fake) OpenPullRequest(branch, title, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailPR {
		return "", fmt.Errorf("simulated pull request failure")
	}
	url := fmt.Sprintf("https://example.com/pulls/%d", len(f.PullRequests)+1)
	f.PullRequests = append(f.PullRequests, url)
	return url, nil
}

// CommitCount returns the number of commits on a branch.
func (f *Fake) CommitCount(branch string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.commits[branch])
}

var _ Runner = (*Fake)(nil)
