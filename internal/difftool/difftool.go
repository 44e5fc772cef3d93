package difftool

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/pkg/errors"
)

var (
	ErrToolNotFound  = errors.New("migration diff tool not found")
	ErrEmptyDiff     = errors.New("diff produced no SQL")
	ErrMalformedSQL  = errors.New("diff output is not recognizable SQL")
	ErrToolFailed    = errors.New("migration diff tool failed")
)

// Env carries the connection strings the external diff tool reads from its
// environment. The variable names are a contract with the tool.
type Env struct {
	DatabaseURL       string
	DirectDatabaseURL string
	ShadowDatabaseURL string
}

func (e Env) vars() []string {
	return []string{
		"DATABASE_URL=" + e.DatabaseURL,
		"DIRECT_DATABASE_URL=" + e.DirectDatabaseURL,
		"SHADOW_DATABASE_URL=" + e.ShadowDatabaseURL,
	}
}

// Tool shells out to the external schema-diff CLI. It never interprets the
// schema itself, it only runs the binary and post-processes its stdout.
type Tool struct {
	binary      string
	schemaPath  string
	env         Env
	lg          logger.Logger
	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func New(binary, schemaPath string, env Env, lg logger.Logger) *Tool {
	return &Tool{
		binary:      binary,
		schemaPath:  schemaPath,
		env:         env,
		lg:          lg,
		execCommand: exec.CommandContext,
	}
}

// Check verifies the binary is installed. Part of the bootstrap step.
func (t *Tool) Check() error {
	if _, err := exec.LookPath(t.binary); err != nil {
		return errors.Wrapf(ErrToolNotFound, "%s", t.binary)
	}

	return nil
}

// Baseline computes the full from-empty diff against the current schema,
// sanitizes it and validates that it is SQL-shaped. Empty or malformed
// output is fatal.
func (t *Tool) Baseline(ctx context.Context) (string, error) {
	raw, err := t.run(ctx,
		"migrate", "diff",
		"--from-empty",
		"--to-schema-datamodel", t.schemaPath,
		"--script",
	)
	if err != nil {
		return "", err
	}

	script := Sanitize(raw)
	if script == "" {
		return "", errors.Wrapf(ErrEmptyDiff, "raw output:\n%s", raw)
	}

	if !LooksLikeSQL(script) {
		return "", errors.Wrapf(ErrMalformedSQL, "offending content:\n%s", script)
	}

	return script, nil
}

// Diff replays the accumulated migrations through the shadow database and
// computes the delta to the current schema. An empty sanitized result means
// the schema is unchanged and is reported as ErrEmptyDiff, which callers
// treat as a successful no-op.
func (t *Tool) Diff(ctx context.Context, migrationsDir string) (string, error) {
	raw, err := t.run(ctx,
		"migrate", "diff",
		"--from-migrations", migrationsDir,
		"--to-schema-datamodel", t.schemaPath,
		"--shadow-database-url", t.env.ShadowDatabaseURL,
		"--script",
	)
	if err != nil {
		return "", err
	}

	script := Sanitize(raw)
	if script == "" {
		return "", ErrEmptyDiff
	}

	return script, nil
}

func (t *Tool) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := t.execCommand(ctx, t.binary, args...)
	cmd.Env = append(os.Environ(), t.env.vars()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	t.lg.Debugf("running %s %v", t.binary, args)

	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(ErrToolFailed, "%s: %s", err.Error(), stderr.String())
	}

	return stdout.String(), nil
}
