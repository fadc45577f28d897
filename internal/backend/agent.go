package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
	"github.com/s21platform/ticketchat-service/internal/model"
)

const (
	planFile   = "plan.md"
	planHeader = "# Implementation Plan\n\n"

	commitMessage = "AI-generated implementation"
)

var (
	ErrEmptyMessage  = errors.New("@chat requires a message")
	ErrNoPlanFile    = errors.New("plan.md not found, run @make_plan first")
	ErrUnknownAction = errors.New("unknown action")
)

const chatPrompt = `You are a helpful coding assistant working inside a collaborative ticket.
Answer questions about this repository and the ticket context.
Unless explicitly requested, do NOT modify any files.

User message:
%s`

const planPrompt = `You are the planning agent for this ticket.
Your job is to write or update ` + "`plan.md`" + ` in this repository with a clear,
step-by-step implementation plan for the current ticket.
- Do NOT modify any source code files in this step.
- Only create or update ` + "`plan.md`" + `.
`

const devPrompt = `You are the development agent for this ticket.
Read ` + "`plan.md`" + ` in this repository and implement the plan by editing the
appropriate source files.
- Make all necessary code changes to fully implement the plan.
- Do NOT modify ` + "`plan.md`" + ` itself in this step.
- You may run tests or other commands if needed, but keep changes focused.
`

// Agent drives the LLM CLI inside a ticket workspace. Every method yields
// output lines as they are produced; an error ends the sequence.
type Agent struct {
	workspaces *Workspaces
	sessions   *Sessions
	runner     Runner
	cli        string
	baseBranch string
}

func NewAgent(cfg *config.Config, workspaces *Workspaces, sessions *Sessions, runner Runner) *Agent {
	return &Agent{
		workspaces: workspaces,
		sessions:   sessions,
		runner:     runner,
		cli:        cfg.Workspace.CLIPath,
		baseBranch: cfg.Workspace.BaseBranch,
	}
}

// Run maps a command action to the agent behaviour serving it.
func (a *Agent) Run(ctx context.Context, action model.CommandType, ticketID, message string) (iter.Seq2[string, error], error) {
	switch action {
	case model.CommandChat:
		return a.Chat(ctx, ticketID, message), nil
	case model.CommandMakePlan:
		return a.MakePlan(ctx, ticketID, message), nil
	case model.CommandDev:
		return a.Dev(ctx, ticketID, message), nil
	}
	return nil, fmt.Errorf("%w '%s'", ErrUnknownAction, action)
}

func (a *Agent) Chat(ctx context.Context, ticketID, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(message) == "" {
			yield("", ErrEmptyMessage)
			return
		}
		a.prompt(ctx, ticketID, fmt.Sprintf(chatPrompt, message))(yield)
	}
}

// MakePlan asks the agent to write plan.md. message carries the conversation
// context and any extra instruction.
func (a *Agent) MakePlan(ctx context.Context, ticketID, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dir, err := a.workspaces.Ensure(ticketID)
		if err != nil {
			yield("", err)
			return
		}

		planPath := filepath.Join(dir, planFile)
		if _, err := os.Stat(planPath); errors.Is(err, os.ErrNotExist) {
			if err := os.WriteFile(planPath, []byte(planHeader), 0o644); err != nil {
				yield("", fmt.Errorf("failed to create %s: %w", planFile, err))
				return
			}
		}

		prompt := planPrompt
		if strings.TrimSpace(message) != "" {
			prompt += "\nHere is the ticket context and request:\n" + message + "\n"
		}
		a.prompt(ctx, ticketID, prompt)(yield)
	}
}

// Dev implements plan.md, then commits, pushes the ticket branch and opens a
// pull request unless one is already open.
func (a *Agent) Dev(ctx context.Context, ticketID, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		logger := logger_lib.FromContext(ctx, config.KeyLogger)
		logger.AddFuncName("Dev")

		dir, err := a.workspaces.Ensure(ticketID)
		if err != nil {
			yield("", err)
			return
		}
		if _, err := os.Stat(filepath.Join(dir, planFile)); err != nil {
			yield("", ErrNoPlanFile)
			return
		}

		prompt := devPrompt
		if strings.TrimSpace(message) != "" {
			prompt += "\nAdditional context:\n" + message + "\n"
		}

		failed := false
		for line, err := range a.prompt(ctx, ticketID, prompt) {
			if !yield(line, err) {
				return
			}
			if err != nil {
				failed = true
			}
		}
		if failed {
			return
		}

		if _, err := a.runner.Run(ctx, dir, []string{"git", "add", "."}); err != nil {
			yield("", fmt.Errorf("failed to stage changes: %w", err))
			return
		}
		if _, err := a.runner.Run(ctx, dir, []string{"git", "commit", "-m", commitMessage}); err != nil {
			// nothing to commit still lets an earlier commit reach the PR
			logger.Warn(fmt.Sprintf("commit in %s failed: %v", ticketID, err))
			if !yield("No new changes to commit.", nil) {
				return
			}
		} else if !yield("Changes committed.", nil) {
			return
		}

		branch := BranchName(ticketID)
		if _, err := a.runner.Run(ctx, dir, []string{"git", "push", "--set-upstream", "origin", branch}); err != nil {
			yield("", fmt.Errorf("failed to push %s: %w", branch, err))
			return
		}
		if !yield(fmt.Sprintf("Branch '%s' pushed to origin.", branch), nil) {
			return
		}

		if url, ok := a.existingPR(ctx, dir, branch); ok {
			if !yield(fmt.Sprintf("Existing PR detected: %s", url), nil) {
				return
			}
			yield("PR updated with new commits.", nil)
			return
		}

		out, err := a.runner.Run(ctx, dir, []string{
			"gh", "pr", "create",
			"--head", branch,
			"--base", a.baseBranch,
			"--title", fmt.Sprintf("AI Implementation for Ticket %s", ticketID),
			"--body", "This PR was generated automatically via @dev.",
		})
		if err != nil {
			yield("", fmt.Errorf("failed to create PR: %w", err))
			return
		}

		for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
			if !yield(line, nil) {
				return
			}
		}
		yield("Pull request created successfully.", nil)
	}
}

func (a *Agent) existingPR(ctx context.Context, dir, branch string) (string, bool) {
	out, err := a.runner.Run(ctx, dir, []string{"gh", "pr", "view", branch, "--json", "url"})
	if err != nil {
		return "", false
	}

	var view struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(out, &view); err != nil || view.URL == "" {
		return "", false
	}
	return view.URL, true
}

// prompt runs one prompt in the ticket's session.
func (a *Agent) prompt(ctx context.Context, ticketID, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dir, err := a.workspaces.Ensure(ticketID)
		if err != nil {
			yield("", err)
			return
		}

		session, err := a.sessions.Get(ctx, ticketID, dir)
		if err != nil {
			yield("", fmt.Errorf("failed to create/resume session for ticket '%s': %w", ticketID, err))
			return
		}

		a.runner.Stream(ctx, dir, []string{a.cli, "-p", text, "--resume=" + session})(yield)
	}
}
