package difftool

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

func fakeTool(t *testing.T, fake func(name string, args ...string) *exec.Cmd) (*Tool, *[][]string) {
	t.Helper()

	var calls [][]string
	tool := New("schema-diff", "schema.prisma", Env{
		DatabaseURL:       "postgres://primary",
		DirectDatabaseURL: "postgres://direct",
		ShadowDatabaseURL: "postgres://shadow",
	}, &logger.NullLogger{})

	tool.execCommand = func(_ context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string{name}, args...))
		return fake(name, args...)
	}

	return tool, &calls
}

func Test_Baseline(t *testing.T) {
	t.Run("returns the sanitized script", func(t *testing.T) {
		tool, calls := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("echo", "-- CreateTable\nCREATE TABLE foo (id INT);")
		})

		script, err := tool.Baseline(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "-- CreateTable\nCREATE TABLE foo (id INT);", script)

		require.Len(t, *calls, 1)
		argsStr := strings.Join((*calls)[0], " ")
		assert.Contains(t, argsStr, "migrate diff")
		assert.Contains(t, argsStr, "--from-empty")
		assert.Contains(t, argsStr, "--to-schema-datamodel schema.prisma")
		assert.Contains(t, argsStr, "--script")
	})

	t.Run("empty output after sanitization is fatal", func(t *testing.T) {
		tool, _ := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("echo", "npm warn deprecated something")
		})

		_, err := tool.Baseline(context.Background())
		assert.True(t, errors.Is(err, ErrEmptyDiff))
	})

	t.Run("non SQL first line is fatal and dumps the content", func(t *testing.T) {
		tool, _ := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("echo", "banner that survived\nCREATE TABLE foo (id INT);")
		})

		_, err := tool.Baseline(context.Background())
		require.True(t, errors.Is(err, ErrMalformedSQL))
		assert.Contains(t, err.Error(), "banner that survived")
	})

	t.Run("tool exit failure is propagated", func(t *testing.T) {
		tool, _ := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("false")
		})

		_, err := tool.Baseline(context.Background())
		assert.True(t, errors.Is(err, ErrToolFailed))
	})
}

func Test_Diff(t *testing.T) {
	t.Run("empty delta reports ErrEmptyDiff", func(t *testing.T) {
		tool, _ := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("echo", "")
		})

		_, err := tool.Diff(context.Background(), "./migrations")
		assert.True(t, errors.Is(err, ErrEmptyDiff))
	})

	t.Run("non empty delta is returned with shadow url wired in", func(t *testing.T) {
		tool, calls := fakeTool(t, func(_ string, _ ...string) *exec.Cmd {
			return exec.Command("echo", "ALTER TABLE foo ADD COLUMN bar INT;")
		})

		script, err := tool.Diff(context.Background(), "./migrations")
		require.NoError(t, err)
		assert.Equal(t, "ALTER TABLE foo ADD COLUMN bar INT;", script)

		argsStr := strings.Join((*calls)[0], " ")
		assert.Contains(t, argsStr, "--from-migrations ./migrations")
		assert.Contains(t, argsStr, "--shadow-database-url postgres://shadow")
	})
}
