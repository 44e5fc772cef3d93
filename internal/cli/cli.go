package cli

import (
	"context"
	"io"
	"log"
	"os"
	"strings"

	"github.com/dunlinhq/dunlin"
	"github.com/dunlinhq/dunlin/internal/database"
	"github.com/dunlinhq/dunlin/internal/difftool"
	"github.com/dunlinhq/dunlin/internal/publish"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const configFileStub = `version: "1"

pipeline:
  migrations_folder: ./migrations
  schema_file: ./schema.prisma
  diff_binary: schema-diff
  # provider defaults to the scheme of DATABASE_URL when omitted
  provider: ""

publish:
  repo_dir: .
  base_branch: main
  repository: "%%GITHUB_REPOSITORY%%"
  api_base_url: https://api.github.com
  author_name: dunlin-bot
  author_email: dunlin-bot@users.noreply.github.com
`

// App wires the yaml config and the environment contract into a pipeline.
type App struct {
	pipeline *dunlin.Pipeline
}

func NewFromYaml(path string, e Environment, debug bool) (*App, error) {
	cfg, err := createConfigFromYaml(path)
	if err != nil {
		return nil, err
	}

	return New(cfg, e, debug)
}

func New(cfg Config, e Environment, debug bool) (*App, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = providerFromURL(e.DatabaseURL)
	}

	repoDir := cfg.RepoDir
	if repoDir == "" {
		repoDir = "."
	}

	opts := []dunlin.OptionFunc{
		dunlin.UseColorLogger(log.New(os.Stdout, "", 0), true, debug),
		dunlin.UseLocalFolderSource(cfg.MigrationsFolder),
		dunlin.UseDiffTool(cfg.DiffBinary, cfg.SchemaFile, difftool.Env{
			DatabaseURL:       e.DatabaseURL,
			DirectDatabaseURL: e.DirectDatabaseURL,
			ShadowDatabaseURL: e.ShadowDatabaseURL,
		}),
		dunlin.UseVerifier(e.DatabaseURL, database.NewDefaultConnectOptions()),
		dunlin.UseGitPublisher(repoDir, cfg.AuthorName, cfg.AuthorEmail),
		dunlin.UseProvider(provider),
	}

	if cfg.Repository != "" {
		apiBaseURL := cfg.APIBaseURL
		if apiBaseURL == "" {
			apiBaseURL = publish.DefaultAPIBaseURL
		}

		opts = append(opts, dunlin.UseGitHub(apiBaseURL, cfg.Repository, e.GithubToken))
	}

	if cfg.BaseBranch != "" {
		opts = append(opts, dunlin.UseBaseBranch(cfg.BaseBranch))
	}

	p, err := dunlin.NewPipeline(opts...)
	if err != nil {
		return nil, err
	}

	return &App{pipeline: p}, nil
}

// Run executes the full generate-verify-publish sequence.
func (app *App) Run(ctx context.Context) (*dunlin.Result, error) {
	return app.pipeline.Run(ctx)
}

// Generate runs bootstrap and generation only, skipping verification and
// publication.
func (app *App) Generate(ctx context.Context) (*dunlin.Result, error) {
	if err := app.pipeline.Bootstrap(ctx); err != nil {
		return nil, err
	}

	return app.pipeline.Generate(ctx)
}

// Verify applies the accumulated migrations to a scratch database without
// generating anything new.
func (app *App) Verify(ctx context.Context) error {
	return app.pipeline.Verify(ctx)
}

func InitCfg(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create config file")
	}

	defer func() {
		if err := f.Close(); err != nil {
			panic(err)
		}
	}()

	r := strings.NewReader(configFileStub)

	if _, err := io.Copy(f, r); err != nil {
		return err
	}

	return nil
}

func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return !info.IsDir()
}
