package publish

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/pkg/errors"
)

var ErrNothingToCommit = errors.New("nothing to commit")

// GitPublisher stages the migrations directory, commits it on a fresh branch
// and pushes the branch. It never touches anything outside that directory.
type GitPublisher struct {
	repoDir     string
	authorName  string
	authorEmail string
	remote      string
	lg          logger.Logger
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewGitPublisher(repoDir, authorName, authorEmail string, lg logger.Logger) *GitPublisher {
	return &GitPublisher{
		repoDir:     repoDir,
		authorName:  authorName,
		authorEmail: authorEmail,
		remote:      "origin",
		lg:          lg,
		execCommand: exec.CommandContext,
	}
}

// Publish creates branch, stages migrationsDir only, commits and pushes.
// Returns ErrNothingToCommit when the working tree holds no changes under
// migrationsDir.
func (p *GitPublisher) Publish(ctx context.Context, branch, migrationsDir, message string) error {
	if _, err := p.git(ctx, "checkout", "-b", branch); err != nil {
		return errors.Wrapf(err, "could not create branch %s", branch)
	}

	if _, err := p.git(ctx, "add", "--", migrationsDir); err != nil {
		return errors.Wrapf(err, "could not stage %s", migrationsDir)
	}

	commitArgs := []string{"commit", "-m", message}
	if p.authorName != "" && p.authorEmail != "" {
		commitArgs = append(commitArgs, "--author", p.authorName+" <"+p.authorEmail+">")
	}

	out, err := p.git(ctx, commitArgs...)
	if err != nil {
		if strings.Contains(out, "nothing to commit") || strings.Contains(out, "nothing added to commit") {
			return ErrNothingToCommit
		}

		return errors.Wrap(err, "could not commit migrations")
	}

	if _, err := p.git(ctx, "push", "-u", p.remote, branch); err != nil {
		return errors.Wrapf(err, "could not push branch %s", branch)
	}

	p.lg.Successf("pushed branch %s", branch)

	return nil
}

func (p *GitPublisher) git(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := p.execCommand(ctx, "git", append([]string{"-C", p.repoDir}, args...)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.lg.Debugf("git %s", strings.Join(args, " "))

	err := cmd.Run()
	combined := stdout.String() + stderr.String()
	if err != nil {
		return combined, errors.Wrapf(err, "git %s: %s", args[0], strings.TrimSpace(combined))
	}

	return combined, nil
}
