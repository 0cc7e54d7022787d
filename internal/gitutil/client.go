// Package gitutil provides a client for working with Git repositories.
package gitutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoHistory marks a path with no usable version-control history. Callers
// are expected to fall back to filesystem metadata.
var ErrNoHistory = errors.New("no git history available")

// FileHistory summarizes one file's commit activity, used by the importance
// scorer's change-frequency signal.
type FileHistory struct {
	Commits    int
	Authors    int
	LastChange time.Time
}

// Client handles interacting with Git repositories.
type Client struct {
	Logger *slog.Logger
}

// NewClient returns a new Client instance.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Logger: logger}
}

// Open opens a Git repository at a given path.
func (c *Client) Open(path string) (*git.Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", path, err)
	}
	return repo, nil
}

// Clone clones a repository to a specific path.
func (c *Client) Clone(ctx context.Context, repoURL, path string) (*git.Repository, error) {
	if err := validateCloneURL(repoURL); err != nil {
		return nil, err
	}

	c.Logger.InfoContext(ctx, "cloning repository", "url", repoURL, "path", path)
	// Use git CLI to clone with longpaths enabled
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "clone", "--quiet", repoURL, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("git clone failed: %s: %w", string(out), err)
	}

	// Make sure we can open it with go-git for history queries later
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cloned repo: %w", err)
	}
	return repo, nil
}

// CloneTemp clones a repo into a temporary directory, optionally checks out
// a commit, and returns the path with a cleanup function.
func (c *Client) CloneTemp(ctx context.Context, repoURL, sha string) (string, func(), error) {
	repoPath, err := os.MkdirTemp("", "code-mender-repo-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	cleanup := func() {
		c.Logger.Info("cleaning up temporary repository", "path", repoPath)
		if removeErr := os.RemoveAll(repoPath); removeErr != nil {
			c.Logger.Error("failed to remove temp repo", "path", repoPath, "error", removeErr)
		}
	}

	if _, err = c.Clone(ctx, repoURL, repoPath); err != nil {
		cleanup()
		return "", nil, err
	}

	if sha != "" {
		if err := c.Checkout(ctx, repoPath, sha); err != nil {
			cleanup()
			return "", nil, err
		}
	}

	c.Logger.InfoContext(ctx, "repository cloned successfully", "path", repoPath)
	return repoPath, cleanup, nil
}

// Checkout switches the repository's worktree to a specific commit using git CLI.
func (c *Client) Checkout(ctx context.Context, path string, sha string) error {
	c.Logger.Info("checking out commit", "sha", sha)

	// Force avoids lingering lock issues on re-checkout
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "checkout", "--force", sha)
	cmd.Dir = path

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout failed: %s: %w", string(out), err)
	}
	return nil
}

// GetHeadSHA returns the current HEAD SHA of the repository at the given path.
func (c *Client) GetHeadSHA(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FileHistory walks the commit log for a single file relative to the
// repository root. Returns ErrNoHistory when the path is not a repository
// or the file has no commits.
func (c *Client) FileHistory(projectPath, relFile string) (FileHistory, error) {
	repo, err := git.PlainOpen(projectPath)
	if err != nil {
		return FileHistory{}, fmt.Errorf("%w: %s", ErrNoHistory, projectPath)
	}

	iter, err := repo.Log(&git.LogOptions{FileName: &relFile})
	if err != nil {
		return FileHistory{}, fmt.Errorf("%w: %s", ErrNoHistory, relFile)
	}
	defer iter.Close()

	var h FileHistory
	authors := make(map[string]bool)
	err = iter.ForEach(func(commit *object.Commit) error {
		h.Commits++
		authors[commit.Author.Email] = true
		if commit.Author.When.After(h.LastChange) {
			h.LastChange = commit.Author.When
		}
		return nil
	})
	if err != nil {
		return FileHistory{}, fmt.Errorf("walking log for %s: %w", relFile, err)
	}
	if h.Commits == 0 {
		return FileHistory{}, fmt.Errorf("%w: %s", ErrNoHistory, relFile)
	}
	h.Authors = len(authors)
	return h, nil
}

func validateCloneURL(repoURL string) error {
	// Local paths are allowed; file:// is intentionally unsupported.
	if !strings.Contains(repoURL, "://") {
		return nil
	}
	if !strings.HasPrefix(repoURL, "https://") && !strings.HasPrefix(repoURL, "http://") &&
		!strings.HasPrefix(repoURL, "ssh://") {
		return fmt.Errorf("invalid repository URL: %s", repoURL)
	}
	return nil
}
