package dunlin

import (
	"github.com/dunlinhq/dunlin/internal/database"
	"github.com/dunlinhq/dunlin/internal/difftool"
	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/dunlinhq/dunlin/internal/publish"
	"github.com/dunlinhq/dunlin/internal/source"
	"github.com/dunlinhq/dunlin/migration"
)

type OptionFunc func(*Pipeline) error

func UseLocalFolderSource(folder string) OptionFunc {
	return func(p *Pipeline) error {
		p.src = source.NewLocalDirSource(folder, p.lg)
		return nil
	}
}

// UseDiffTool wires the external schema-diff CLI. Env's connection strings
// are both the child process contract and the bootstrap health check
// targets.
func UseDiffTool(binary, schemaPath string, env difftool.Env) OptionFunc {
	return func(p *Pipeline) error {
		p.tool = difftool.New(binary, schemaPath, env, p.lg)
		p.primaryURL = env.DatabaseURL
		p.shadowURL = env.ShadowDatabaseURL
		return nil
	}
}

func UseVerifier(primaryURL string, options *database.ConnectOptions) OptionFunc {
	return func(p *Pipeline) error {
		p.verifier = database.NewVerifier(primaryURL, options, p.lg)
		return nil
	}
}

func UseGitPublisher(repoDir, authorName, authorEmail string) OptionFunc {
	return func(p *Pipeline) error {
		p.git = publish.NewGitPublisher(repoDir, authorName, authorEmail, p.lg)
		return nil
	}
}

func UseGitHub(apiBaseURL, repo, token string) OptionFunc {
	return func(p *Pipeline) error {
		p.github = publish.NewGitHubClient(apiBaseURL, repo, token, p.lg)
		return nil
	}
}

func UseProvider(provider string) OptionFunc {
	return func(p *Pipeline) error {
		p.provider = provider
		return nil
	}
}

func UseBaseBranch(branch string) OptionFunc {
	return func(p *Pipeline) error {
		p.baseBranch = branch
		return nil
	}
}

func UseColorLogger(printer logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(p *Pipeline) error {
		p.lg = logger.NewColorLogger(printer, printSQL, printDebug)
		return nil
	}
}

func UseBWLogger(printer logger.Printer, printSQL, printDebug bool) OptionFunc {
	return func(p *Pipeline) error {
		p.lg = logger.NewBWLogger(printer, printSQL, printDebug)
		return nil
	}
}

func UseClock(cf migration.ClockFunc) OptionFunc {
	return func(p *Pipeline) error {
		p.clock = cf
		return nil
	}
}

// Options below inject fakes in tests.

func useDiffToolImpl(tool DiffTool) OptionFunc {
	return func(p *Pipeline) error {
		p.tool = tool
		return nil
	}
}

func useVerifierImpl(v Verifier) OptionFunc {
	return func(p *Pipeline) error {
		p.verifier = v
		return nil
	}
}

func usePublisherImpl(git BranchPublisher, github PullRequester) OptionFunc {
	return func(p *Pipeline) error {
		p.git = git
		p.github = github
		return nil
	}
}

func useHealthCheck(hc HealthCheck) OptionFunc {
	return func(p *Pipeline) error {
		p.ping = hc
		return nil
	}
}
