package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
)

var (
	ErrWorkspaceMissing = errors.New("workspace does not exist")
	ErrInvalidTicketID  = errors.New("invalid ticket id")
	ErrRepoURLRequired  = errors.New("repo_url is required to create a workspace")
)

var ticketIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// BranchName is the git branch all work on a ticket happens on.
func BranchName(ticketID string) string {
	return "ticket_" + ticketID
}

// Workspaces manages one git checkout per ticket under a common root.
type Workspaces struct {
	root   string
	runner Runner
}

func NewWorkspaces(root string, runner Runner) *Workspaces {
	return &Workspaces{root: root, runner: runner}
}

// Path maps a ticket id to its directory. Ids that could escape the root are
// rejected.
func (w *Workspaces) Path(ticketID string) (string, error) {
	if !ticketIDPattern.MatchString(ticketID) || strings.Contains(ticketID, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidTicketID, ticketID)
	}
	return filepath.Join(w.root, ticketID), nil
}

// Ensure returns the directory of an existing workspace.
func (w *Workspaces) Ensure(ticketID string) (string, error) {
	path, err := w.Path(ticketID)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("workspace for ticket '%s': %w", ticketID, ErrWorkspaceMissing)
		}
		return "", fmt.Errorf("failed to stat workspace: %w", err)
	}
	return path, nil
}

// Prepare loads the workspace of a ticket, cloning repoURL on first use, and
// leaves it on the ticket branch. It reports whether the workspace was new.
func (w *Workspaces) Prepare(ctx context.Context, ticketID, repoURL string) (bool, error) {
	logger := logger_lib.FromContext(ctx, config.KeyLogger)
	logger.AddFuncName("Prepare")

	path, err := w.Path(ticketID)
	if err != nil {
		return false, err
	}
	branch := BranchName(ticketID)

	entries, err := os.ReadDir(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to read workspace: %w", err)
	}

	if len(entries) > 0 {
		// a ticket branch without upstream cannot be pulled; the checkout still matters
		if _, err := w.runner.Run(ctx, path, []string{"git", "pull"}); err != nil {
			logger.Warn(fmt.Sprintf("failed to pull workspace %s: %v", ticketID, err))
		}
		if _, err := w.runner.Run(ctx, path, []string{"git", "checkout", "-B", branch}); err != nil {
			return false, fmt.Errorf("failed to check out %s: %w", branch, err)
		}
		return false, nil
	}

	if strings.TrimSpace(repoURL) == "" {
		return false, ErrRepoURLRequired
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return false, fmt.Errorf("failed to create workspace: %w", err)
	}
	if _, err := w.runner.Run(ctx, "", []string{"git", "clone", repoURL, path}); err != nil {
		return false, fmt.Errorf("failed to clone %s: %w", repoURL, err)
	}
	if _, err := w.runner.Run(ctx, path, []string{"git", "checkout", "-b", branch}); err != nil {
		return false, fmt.Errorf("failed to create branch %s: %w", branch, err)
	}

	logger.Info(fmt.Sprintf("cloned %s into workspace %s", repoURL, ticketID))
	return true, nil
}

// Checkout puts an existing workspace back on its ticket branch.
func (w *Workspaces) Checkout(ctx context.Context, ticketID string) error {
	path, err := w.Ensure(ticketID)
	if err != nil {
		return err
	}
	if _, err := w.runner.Run(ctx, path, []string{"git", "checkout", "-B", BranchName(ticketID)}); err != nil {
		return fmt.Errorf("failed to check out ticket branch: %w", err)
	}
	return nil
}
