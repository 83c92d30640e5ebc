// Package git provides the repository contract the handoff gate depends on.
package git

// Commit is one entry of a branch's history.
type Commit struct {
	Hash    string
	Message string
}

// BranchOperations defines branch management on the repository.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// CreateAndCheckoutBranch creates and switches to a new branch.
	CreateAndCheckoutBranch(name string) error
	// CheckoutBranch switches to the specified branch.
	CheckoutBranch(name string) error
}

// CommitOperations defines staging and committing.
type CommitOperations interface {
	// WriteFile writes content to a path inside the work tree.
	WriteFile(path, content string) error
	// Add stages the specified files for commit.
	Add(paths ...string) error
	// Commit creates a new commit and returns its hash.
	Commit(message string) (string, error)
	// HasChanges returns true if there are uncommitted changes.
	HasChanges() (bool, error)
}

// HistoryOperations defines read access to committed state. Handoff retries
// consult these before re-committing so a crash between commit and status
// update never duplicates work.
type HistoryOperations interface {
	// ShowFile returns the contents of a file at a specific ref. The
	// returned bool is false when the file does not exist at that ref.
	ShowFile(ref, path string) (string, bool, error)
	// Log returns the branch's history, newest first, up to limit entries.
	Log(branch string, limit int) ([]Commit, error)
	// HeadHash returns the hash of the current HEAD.
	HeadHash() (string, error)
}

// RemoteOperations defines interaction with the hosting service.
type RemoteOperations interface {
	// Push pushes the branch to the default remote.
	Push(branch string) error
	// OpenPullRequest opens a pull request for the branch and returns its
	// URL.
	OpenPullRequest(branch, title, body string) (string, error)
}

// Runner is the complete repository contract. Consumers should prefer the
// focused interfaces when possible.
type Runner interface {
	BranchOperations
	CommitOperations
	HistoryOperations
	RemoteOperations
}
