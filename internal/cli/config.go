package cli

import (
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

var (
	ErrFolderNotDefined = errors.New("migrations folder was not defined")
	ErrSchemaNotDefined = errors.New("schema file was not defined")
)

type (
	// Environment is the env var contract shared with the external diff
	// tool. Variable names are fixed, the tool reads the same ones.
	Environment struct {
		DatabaseURL       string `env:"DATABASE_URL,required,notEmpty"`
		DirectDatabaseURL string `env:"DIRECT_DATABASE_URL"`
		ShadowDatabaseURL string `env:"SHADOW_DATABASE_URL"`
		GithubToken       string `env:"GITHUB_TOKEN"`
	}

	Config struct {
		MigrationsFolder string
		SchemaFile       string
		DiffBinary       string
		Provider         string
		RepoDir          string
		BaseBranch       string
		Repository       string
		APIBaseURL       string
		AuthorName       string
		AuthorEmail      string
	}

	pipelineSection struct {
		MigrationsFolder string `yaml:"migrations_folder"`
		SchemaFile       string `yaml:"schema_file"`
		DiffBinary       string `yaml:"diff_binary"`
		Provider         string `yaml:"provider"`
	}

	publishSection struct {
		RepoDir     string `yaml:"repo_dir"`
		BaseBranch  string `yaml:"base_branch"`
		Repository  string `yaml:"repository"`
		APIBaseURL  string `yaml:"api_base_url"`
		AuthorName  string `yaml:"author_name"`
		AuthorEmail string `yaml:"author_email"`
	}

	configFile struct {
		Version  string          `yaml:"version"`
		Pipeline pipelineSection `yaml:"pipeline"`
		Publish  publishSection  `yaml:"publish"`
	}
)

func LoadEnvironment() (Environment, error) {
	var e Environment
	if err := env.Parse(&e); err != nil {
		return e, errors.Wrap(err, "could not parse environment contract")
	}

	return e, nil
}

func createConfigFromYaml(path string) (Config, error) {
	var cfg Config

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read dunlin configuration file")
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(b, &cfgFile); err != nil {
		return cfg, errors.Wrap(err, "could not parse dunlin configuration file")
	}

	cfg.MigrationsFolder = interpolate(cfgFile.Pipeline.MigrationsFolder)
	cfg.SchemaFile = interpolate(cfgFile.Pipeline.SchemaFile)
	cfg.DiffBinary = interpolate(cfgFile.Pipeline.DiffBinary)
	cfg.Provider = interpolate(cfgFile.Pipeline.Provider)
	cfg.RepoDir = interpolate(cfgFile.Publish.RepoDir)
	cfg.BaseBranch = interpolate(cfgFile.Publish.BaseBranch)
	cfg.Repository = interpolate(cfgFile.Publish.Repository)
	cfg.APIBaseURL = interpolate(cfgFile.Publish.APIBaseURL)
	cfg.AuthorName = interpolate(cfgFile.Publish.AuthorName)
	cfg.AuthorEmail = interpolate(cfgFile.Publish.AuthorEmail)

	if cfg.MigrationsFolder == "" {
		return cfg, ErrFolderNotDefined
	}

	if cfg.SchemaFile == "" {
		return cfg, ErrSchemaNotDefined
	}

	return cfg, nil
}

// interpolate resolves a %%VAR%% placeholder to the value of the VAR
// environment variable. Applied to every string field of the config file.
func interpolate(s string) string {
	if strings.HasPrefix(s, "%%") && strings.HasSuffix(s, "%%") && len(s) > 4 {
		return os.Getenv(strings.ReplaceAll(s, "%%", ""))
	}

	return s
}

// providerFromURL derives the lock file provider string from the scheme of
// the primary connection URL when the config does not name one.
func providerFromURL(rawURL string) string {
	scheme, _, found := strings.Cut(rawURL, "://")
	if !found {
		return ""
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3", "file":
		return "sqlite"
	default:
		return scheme
	}
}
