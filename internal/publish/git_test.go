package publish

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Publish(t *testing.T) {
	t.Run("branch, stage, commit and push in order", func(t *testing.T) {
		var gitCalls [][]string

		p := NewGitPublisher("/repo", "schema-bot", "bot@example.com", &logger.NullLogger{})
		p.execCommand = func(_ context.Context, name string, args ...string) *exec.Cmd {
			gitCalls = append(gitCalls, append([]string{name}, args...))
			return exec.Command("true")
		}

		err := p.Publish(context.Background(), "schema-migrations/20240816093055", "migrations", "chore(db): add migration")
		require.NoError(t, err)
		require.Len(t, gitCalls, 4)

		assert.Contains(t, strings.Join(gitCalls[0], " "), "checkout -b schema-migrations/20240816093055")
		assert.Contains(t, strings.Join(gitCalls[1], " "), "add -- migrations")
		assert.Contains(t, strings.Join(gitCalls[2], " "), "commit -m")
		assert.Contains(t, strings.Join(gitCalls[2], " "), "--author schema-bot <bot@example.com>")
		assert.Contains(t, strings.Join(gitCalls[3], " "), "push -u origin schema-migrations/20240816093055")

		for _, call := range gitCalls {
			assert.Equal(t, []string{"git", "-C", "/repo"}, call[:3])
		}
	})

	t.Run("nothing to commit is reported as such", func(t *testing.T) {
		calls := 0

		p := NewGitPublisher("/repo", "", "", &logger.NullLogger{})
		p.execCommand = func(_ context.Context, _ string, args ...string) *exec.Cmd {
			calls++
			if calls == 3 { // the commit
				return exec.Command("sh", "-c", "echo 'nothing to commit, working tree clean'; exit 1")
			}
			return exec.Command("true")
		}

		err := p.Publish(context.Background(), "b", "migrations", "msg")
		assert.True(t, errors.Is(err, ErrNothingToCommit))
		assert.Equal(t, 3, calls, "push must not run after an empty commit")
	})

	t.Run("push failure is surfaced", func(t *testing.T) {
		calls := 0

		p := NewGitPublisher("/repo", "", "", &logger.NullLogger{})
		p.execCommand = func(_ context.Context, _ string, _ ...string) *exec.Cmd {
			calls++
			if calls == 4 {
				return exec.Command("sh", "-c", "echo 'permission denied' >&2; exit 1")
			}
			return exec.Command("true")
		}

		err := p.Publish(context.Background(), "b", "migrations", "msg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not push")
	})
}
