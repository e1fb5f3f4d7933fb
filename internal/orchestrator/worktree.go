package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// WorktreeManager owns the lifecycle of git worktrees under a project's
// .worktrees directory: one per running card, isolating an agent's
// branch from the main checkout and from every other agent. Adapted
// from the teacher's git/worktree.go, renamed from ticket-oriented
// naming to card-oriented naming and given context-aware git
// invocations so a stuck git process can be cancelled alongside its
// parent agent run.
type WorktreeManager struct {
	repoRoot    string
	worktreeDir string
	mainBranch  string
}

// NewWorktreeManager builds a manager rooted at repoRoot, storing
// worktrees under worktreeDir (conventionally ".worktrees").
func NewWorktreeManager(repoRoot, worktreeDir, mainBranch string) *WorktreeManager {
	return &WorktreeManager{repoRoot: repoRoot, worktreeDir: worktreeDir, mainBranch: mainBranch}
}

// WorktreeInfo describes one entry from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	Commit string
}

// CreateWorktree creates (or reuses) a worktree for cardID on
// branchName, returning its absolute path.
func (m *WorktreeManager) CreateWorktree(ctx context.Context, cardID, branchName string) (string, error) {
	safeName := sanitizeBranchName(branchName)
	worktreePath := filepath.Join(m.repoRoot, m.worktreeDir, safeName)
	absPath, err := filepath.Abs(worktreePath)
	if err != nil {
		return "", fmt.Errorf("resolve worktree path: %w", err)
	}
	worktreePath = absPath

	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o750); err != nil {
		return "", fmt.Errorf("create worktree parent: %w", err)
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return worktreePath, nil
	}

	if err := m.runGit(ctx, m.repoRoot, "fetch", "origin", m.mainBranch); err != nil {
		return "", fmt.Errorf("fetch origin: %w", err)
	}

	var args []string
	if m.branchExists(ctx, branchName) {
		args = []string{"worktree", "add", worktreePath, branchName}
	} else {
		args = []string{"worktree", "add", "-b", branchName, worktreePath, "origin/" + m.mainBranch}
	}
	if err := m.runGit(ctx, m.repoRoot, args...); err != nil {
		return "", fmt.Errorf("create worktree for card %s: %w", cardID, err)
	}
	return worktreePath, nil
}

// RemoveWorktree removes a worktree and optionally its branch,
// tolerating a worktree that git no longer tracks.
func (m *WorktreeManager) RemoveWorktree(ctx context.Context, worktreePath string, removeBranch bool) error {
	var branchName string
	if removeBranch {
		if info, err := m.worktreeInfo(ctx, worktreePath); err == nil {
			branchName = info.Branch
		}
	}

	if err := m.runGit(ctx, m.repoRoot, "worktree", "remove", "--force", worktreePath); err != nil {
		if rmErr := os.RemoveAll(worktreePath); rmErr != nil {
			return fmt.Errorf("remove worktree directory: %w", rmErr)
		}
		_ = m.runGit(ctx, m.repoRoot, "worktree", "prune")
	}
	if removeBranch && branchName != "" && branchName != m.mainBranch {
		_ = m.runGit(ctx, m.repoRoot, "branch", "-D", branchName)
	}
	return nil
}

// ListWorktrees enumerates every worktree git currently tracks.
func (m *WorktreeManager) ListWorktrees(ctx context.Context) ([]WorktreeInfo, error) {
	output, err := m.runGitOutput(ctx, m.repoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	var worktrees []WorktreeInfo
	var current *WorktreeInfo
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			if current != nil {
				worktrees = append(worktrees, *current)
				current = nil
			}
		case strings.HasPrefix(line, "worktree "):
			current = &WorktreeInfo{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "HEAD ") && current != nil:
			current.Commit = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch ") && current != nil:
			current.Branch = strings.TrimPrefix(line, "branch refs/heads/")
		}
	}
	if current != nil {
		worktrees = append(worktrees, *current)
	}
	return worktrees, nil
}

func (m *WorktreeManager) worktreeInfo(ctx context.Context, worktreePath string) (*WorktreeInfo, error) {
	worktrees, err := m.ListWorktrees(ctx)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(worktreePath)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wtAbs, err := filepath.Abs(wt.Path); err == nil && wtAbs == absPath {
			return &wt, nil
		}
	}
	return nil, fmt.Errorf("worktree not found: %s", worktreePath)
}

// GCOrphans removes every directory under .worktrees/ that git no
// longer tracks as a live worktree, except directories prefixed
// "merge-" which the synthesize phase owns (spec §4.F reconciliation).
func (m *WorktreeManager) GCOrphans(ctx context.Context) ([]string, error) {
	root := filepath.Join(m.repoRoot, m.worktreeDir)
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read worktree dir: %w", err)
	}

	tracked, err := m.ListWorktrees(ctx)
	if err != nil {
		return nil, err
	}
	trackedPaths := make(map[string]bool, len(tracked))
	for _, wt := range tracked {
		if abs, err := filepath.Abs(wt.Path); err == nil {
			trackedPaths[abs] = true
		}
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), "merge-") {
			continue
		}
		full := filepath.Join(root, entry.Name())
		abs, err := filepath.Abs(full)
		if err != nil || trackedPaths[abs] {
			continue
		}
		if err := os.RemoveAll(full); err == nil {
			removed = append(removed, full)
		}
	}
	_ = m.runGit(ctx, m.repoRoot, "worktree", "prune")
	return removed, nil
}

// Commit stages and commits all changes in worktreePath. A no-op
// (nil error) if there is nothing to commit.
func (m *WorktreeManager) Commit(ctx context.Context, worktreePath, message string) error {
	if err := m.runGit(ctx, worktreePath, "add", "-A"); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	dirty, err := m.HasUncommittedChanges(ctx, worktreePath)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	if err := m.runGit(ctx, worktreePath, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Push pushes the worktree's current branch with upstream tracking.
func (m *WorktreeManager) Push(ctx context.Context, worktreePath string) error {
	branch, err := m.CurrentBranch(ctx, worktreePath)
	if err != nil {
		return fmt.Errorf("get current branch: %w", err)
	}
	if err := m.runGit(ctx, worktreePath, "push", "-u", "origin", branch); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

// Merge implements MergeStrategy via SquashMerge, the default merge
// protocol for the synthesize phase.
func (m *WorktreeManager) Merge(ctx context.Context, branchName, commitMessage string) error {
	return m.SquashMerge(ctx, branchName, commitMessage)
}

// SquashMerge integrates branchName into main via a squash merge. This
// is the default MergeStrategy; per §9 Open Question 2 the synthesize
// protocol is policy-pluggable, so callers may substitute another
// implementation behind the MergeStrategy interface.
func (m *WorktreeManager) SquashMerge(ctx context.Context, branchName, commitMessage string) error {
	if err := m.runGit(ctx, m.repoRoot, "checkout", m.mainBranch); err != nil {
		return fmt.Errorf("checkout main: %w", err)
	}
	if err := m.runGit(ctx, m.repoRoot, "pull", "origin", m.mainBranch); err != nil {
		return fmt.Errorf("pull main: %w", err)
	}
	if err := m.runGit(ctx, m.repoRoot, "merge", "--squash", branchName); err != nil {
		return fmt.Errorf("squash merge: %w", err)
	}
	if err := m.runGit(ctx, m.repoRoot, "commit", "-m", commitMessage); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// HasUncommittedChanges reports whether worktreePath has a dirty tree.
func (m *WorktreeManager) HasUncommittedChanges(ctx context.Context, worktreePath string) (bool, error) {
	output, err := m.runGitOutput(ctx, worktreePath, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return len(bytes.TrimSpace(output)) > 0, nil
}

// CurrentBranch returns the checked-out branch name in worktreePath.
func (m *WorktreeManager) CurrentBranch(ctx context.Context, worktreePath string) (string, error) {
	output, err := m.runGitOutput(ctx, worktreePath, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func (m *WorktreeManager) branchExists(ctx context.Context, branchName string) bool {
	if m.runGit(ctx, m.repoRoot, "show-ref", "--verify", "--quiet", "refs/heads/"+branchName) == nil {
		return true
	}
	return m.runGit(ctx, m.repoRoot, "show-ref", "--verify", "--quiet", "refs/remotes/origin/"+branchName) == nil
}

func (m *WorktreeManager) runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Run()
}

func (m *WorktreeManager) runGitOutput(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	return cmd.Output()
}

var branchUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

func sanitizeBranchName(branch string) string {
	branch = strings.TrimPrefix(branch, "feat/")
	branch = strings.TrimPrefix(branch, "fix/")
	branch = strings.TrimPrefix(branch, "chore/")
	return branchUnsafeChars.ReplaceAllString(branch, "-")
}

var branchTitleUnsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

// GenerateBranchName derives a branch name from a card title and id,
// e.g. "agent/claude/add-health-a1b2c3d4" (slug(title) first, shortCardId
// last, per spec's agent/<type>/<slug(title)>-<shortCardId> format).
func GenerateBranchName(prefix, cardID, title string) string {
	title = branchTitleUnsafeChars.ReplaceAllString(title, "")
	title = strings.ToLower(title)
	title = strings.ReplaceAll(title, " ", "-")
	if len(title) > 40 {
		title = title[:40]
	}
	title = strings.TrimRight(title, "-")
	return fmt.Sprintf("%s%s-%s", prefix, title, cardID)
}
