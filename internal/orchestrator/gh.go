package orchestrator

import (
	"context"
	"os/exec"
)

// ghAuthenticated reports whether the gh CLI has a valid session. A
// missing or unauthenticated gh is treated as "push disabled", not an
// error — the branch still exists locally.
func ghAuthenticated(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "gh", "auth", "status")
	return cmd.Run() == nil
}

// runGHPRCreate opens a pull request for the branch checked out in dir.
func runGHPRCreate(ctx context.Context, dir, title, body string) error {
	cmd := exec.CommandContext(ctx, "gh", "pr", "create", "--title", title, "--body", body, "--fill")
	cmd.Dir = dir
	return cmd.Run()
}
