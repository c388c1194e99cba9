package history

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

const gitTimeout = 5 * time.Second

// GitInfo identifies the commit an analysis ran against. Zero outside a work tree.
type GitInfo struct {
	Commit      string
	CommittedAt time.Time
}

// ResolveGit reads HEAD in projectRoot with a single git invocation.
func ResolveGit(ctx context.Context, projectRoot string) GitInfo {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "-C", projectRoot,
		"log", "-1", "--format=%h%x00%cI", "--abbrev=12").Output()
	if err != nil {
		return GitInfo{}
	}
	hash, when, ok := strings.Cut(strings.TrimSpace(string(out)), "\x00")
	if !ok || hash == "" {
		return GitInfo{}
	}
	info := GitInfo{Commit: hash}
	if t, err := time.Parse(time.RFC3339, when); err == nil {
		info.CommittedAt = t.UTC()
	}
	return info
}
