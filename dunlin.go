package dunlin

import (
	"context"
	"fmt"
	"time"

	"github.com/dunlinhq/dunlin/internal/database"
	"github.com/dunlinhq/dunlin/internal/difftool"
	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/dunlinhq/dunlin/internal/publish"
	"github.com/dunlinhq/dunlin/internal/source"
	"github.com/dunlinhq/dunlin/migration"
	"github.com/pkg/errors"
)

var (
	ErrSourceNotInitialized    = errors.New("migrations source has not been initialized")
	ErrDiffToolNotInitialized  = errors.New("diff tool has not been initialized")
	ErrVerifierNotInitialized  = errors.New("verifier has not been initialized")
	ErrPublisherNotInitialized = errors.New("publisher has not been initialized")
)

const DefaultBaseBranch = "main"

type (
	// DiffTool computes SQL deltas by shelling out to the external
	// schema-migration CLI.
	DiffTool interface {
		Check() error
		Baseline(ctx context.Context) (string, error)
		Diff(ctx context.Context, migrationsDir string) (string, error)
	}

	// Verifier applies migrations against a throwaway database.
	Verifier interface {
		Verify(ctx context.Context, migrations migration.Migrations) error
	}

	// BranchPublisher commits the migrations directory on a new branch.
	BranchPublisher interface {
		Publish(ctx context.Context, branch, migrationsDir, message string) error
	}

	// PullRequester opens the pull request carrying the generated files.
	PullRequester interface {
		TokenScopes(ctx context.Context) (string, error)
		CreatePullRequest(ctx context.Context, head, base, unitKey, migrationsDir string) (*publish.PullRequest, error)
	}

	// HealthCheck waits for a database instance to become reachable.
	HealthCheck func(ctx context.Context, url string) error

	// Result is what a pipeline run produced. NoOp means the schema was
	// unchanged and the run short-circuited successfully.
	Result struct {
		NoOp        bool
		Generated   *migration.Migration
		PullRequest *publish.PullRequest
	}
)

// Pipeline is the linear generate-verify-publish sequence. Every step's
// precondition is that the previous step succeeded; the first error is
// terminal for the run.
type Pipeline struct {
	lg       logger.Logger
	src      *source.LocalDirSource
	tool     DiffTool
	verifier Verifier
	git      BranchPublisher
	github   PullRequester
	ping     HealthCheck

	primaryURL string
	shadowURL  string
	provider   string
	baseBranch string
	clock      migration.ClockFunc
}

// NewPipeline creates a pipeline from option callbacks. Source and diff tool
// are mandatory; verification and publication can be left unconfigured when
// only generation is wanted.
func NewPipeline(opts ...OptionFunc) (*Pipeline, error) {
	p := new(Pipeline)
	p.lg = &logger.NullLogger{}
	p.baseBranch = DefaultBaseBranch
	p.clock = time.Now

	for _, oFunc := range opts {
		if err := oFunc(p); err != nil {
			return nil, err
		}
	}

	if p.src == nil {
		return nil, ErrSourceNotInitialized
	}

	if p.tool == nil {
		return nil, ErrDiffToolNotInitialized
	}

	if p.ping == nil {
		p.ping = func(ctx context.Context, url string) error {
			db, err := database.Open(ctx, url, database.NewDefaultConnectOptions(), p.lg)
			if err != nil {
				return err
			}

			return db.Close()
		}
	}

	return p, nil
}

// Run executes the full pipeline: bootstrap, generation, verification,
// publication. A no-op generation short-circuits verification and
// publication and is a success.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.verifier == nil {
		return nil, ErrVerifierNotInitialized
	}

	if p.git == nil || p.github == nil {
		return nil, ErrPublisherNotInitialized
	}

	if err := p.Bootstrap(ctx); err != nil {
		return nil, err
	}

	result, err := p.Generate(ctx)
	if err != nil {
		return nil, err
	}

	if result.NoOp {
		p.lg.Successf("schema unchanged, nothing to do")
		return result, nil
	}

	if err := p.Verify(ctx); err != nil {
		return nil, err
	}

	if err := p.publish(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// Bootstrap checks the diff tool binary and polls both database instances
// until they are reachable.
func (p *Pipeline) Bootstrap(ctx context.Context) error {
	if err := p.tool.Check(); err != nil {
		return err
	}

	if p.primaryURL != "" {
		if err := p.ping(ctx, p.primaryURL); err != nil {
			return errors.Wrap(err, "primary database is not reachable")
		}
	}

	if p.shadowURL != "" {
		if err := p.ping(ctx, p.shadowURL); err != nil {
			return errors.Wrap(err, "shadow database is not reachable")
		}
	}

	return nil
}

// Generate runs the baseline generator on an empty history and the
// incremental generator otherwise. Exactly one new unit is created, or none
// when the schema is unchanged.
func (p *Pipeline) Generate(ctx context.Context) (*Result, error) {
	empty, err := p.src.IsEmpty()
	if err != nil {
		return nil, err
	}

	if empty {
		return p.generateBaseline(ctx)
	}

	return p.generateIncremental(ctx)
}

func (p *Pipeline) generateBaseline(ctx context.Context) (*Result, error) {
	script, err := p.tool.Baseline(ctx)
	if err != nil {
		p.lg.Error(err)
		return nil, err
	}

	if p.provider != "" {
		if err := p.src.EnsureLock(p.provider); err != nil {
			return nil, err
		}
	}

	v := migration.GenerateVersion(p.clock, nil)
	m := migration.New(v, migration.SuffixInitial, script, p.note(v, migration.SuffixInitial))

	if err := p.src.Create(m); err != nil {
		return nil, err
	}

	return &Result{Generated: m}, nil
}

func (p *Pipeline) generateIncremental(ctx context.Context) (*Result, error) {
	existing, err := p.src.Select(ctx)
	if err != nil {
		return nil, err
	}

	script, err := p.tool.Diff(ctx, p.src.Folder())
	if err != nil {
		if errors.Is(err, difftool.ErrEmptyDiff) {
			return &Result{NoOp: true}, nil
		}

		p.lg.Error(err)
		return nil, err
	}

	v := migration.GenerateVersion(p.clock, existing.Versions())
	m := migration.New(v, migration.SuffixSchemaUpdate, script, p.note(v, migration.SuffixSchemaUpdate))

	if err := p.src.Create(m); err != nil {
		return nil, err
	}

	return &Result{Generated: m}, nil
}

// Verify applies every known migration, generated ones included, to a fresh
// scratch database in lexical order.
func (p *Pipeline) Verify(ctx context.Context) error {
	if p.verifier == nil {
		return ErrVerifierNotInitialized
	}

	migrations, err := p.src.Select(ctx)
	if err != nil {
		return err
	}

	if err := p.verifier.Verify(ctx, migrations); err != nil {
		p.lg.Error(err)
		return err
	}

	p.lg.Successf("verified %d migrations against a scratch database", len(migrations))

	return nil
}

func (p *Pipeline) publish(ctx context.Context, result *Result) error {
	// token scope diagnostic, informational only
	if scopes, err := p.github.TokenScopes(ctx); err != nil {
		p.lg.Debugf("token scope check failed: %s", err.Error())
	} else {
		p.lg.Debugf("token scopes: %s", scopes)
	}

	branch := "schema-migrations/" + result.Generated.Version.Value
	message := fmt.Sprintf("chore(db): add migration %s", result.Generated.Key)

	if err := p.git.Publish(ctx, branch, p.src.Folder(), message); err != nil {
		p.lg.Error(err)
		return err
	}

	pr, err := p.github.CreatePullRequest(ctx, branch, p.baseBranch, result.Generated.Key, p.src.Folder())
	if err != nil {
		p.lg.Error(err)
		return err
	}

	result.PullRequest = pr

	return nil
}

func (p *Pipeline) note(v migration.Version, suffix migration.Suffix) string {
	kind := "Incremental schema update"
	if suffix == migration.SuffixInitial {
		kind = "Baseline migration generated from an empty database"
	}

	return fmt.Sprintf(
		"# %s\n\n%s.\n\nGenerated at %s. Do not edit: migrations are immutable once committed.\n",
		migration.CreateKey(v, suffix), kind, v.CreatedAt.Format(time.RFC3339),
	)
}
