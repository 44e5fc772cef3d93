package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dunlinhq/dunlin/internal/cli"
	"github.com/joho/godotenv"
	"github.com/logrusorgru/aurora/v3"
)

const runTimeout = 15 * time.Minute

func run(configPath string, debug bool, action func(ctx context.Context, app *cli.App) error) error {
	e, err := cli.LoadEnvironment()
	if err != nil {
		return err
	}

	app, err := cli.NewFromYaml(configPath, e, debug)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	return action(ctx, app)
}

func main() {
	runCmd := flag.Bool("run", false, "generate, verify and publish in one go")
	generateCmd := flag.Bool("generate", false, "generate a new migration without verifying or publishing")
	verifyCmd := flag.Bool("verify", false, "apply all migrations to a scratch database")
	initCmd := flag.Bool("init", false, "write a config file stub and exit")

	configPath := flag.String("config", "dunlin.yml", "path to the yaml configuration file")
	debug := flag.Bool("debug", false, "verbose output")

	flag.Parse()

	// missing .env is fine, CI runners export the contract directly
	_ = godotenv.Load()

	if *initCmd {
		if cli.FileExists(*configPath) {
			fmt.Println(aurora.Red("dunlin: "), *configPath+" already exists")
			os.Exit(1)
		}

		if err := cli.InitCfg(*configPath); err != nil {
			fmt.Println(aurora.Red("dunlin: "), err.Error())
			os.Exit(1)
		}

		fmt.Println(aurora.Green("dunlin: "), "created "+*configPath)
		os.Exit(0)
	}

	if *runCmd {
		err := run(*configPath, *debug, func(ctx context.Context, app *cli.App) error {
			result, err := app.Run(ctx)
			if err != nil {
				return err
			}

			if result.NoOp {
				fmt.Println(aurora.Green("dunlin: "), "schema unchanged, nothing to do")
				return nil
			}

			fmt.Println(aurora.Green("dunlin: "), "generated "+result.Generated.Key)
			if result.PullRequest != nil {
				fmt.Println(aurora.Green("dunlin: "), "opened "+result.PullRequest.HTMLURL)
			}

			return nil
		})
		exit(err)
	}

	if *generateCmd {
		err := run(*configPath, *debug, func(ctx context.Context, app *cli.App) error {
			result, err := app.Generate(ctx)
			if err != nil {
				return err
			}

			if result.NoOp {
				fmt.Println(aurora.Green("dunlin: "), "schema unchanged, nothing to generate")
				return nil
			}

			fmt.Println(aurora.Green("dunlin: "), "generated "+result.Generated.Key)
			return nil
		})
		exit(err)
	}

	if *verifyCmd {
		err := run(*configPath, *debug, func(ctx context.Context, app *cli.App) error {
			return app.Verify(ctx)
		})
		exit(err)
	}

	fmt.Println(aurora.Red("dunlin: "), "unknown command, expected -run, -generate, -verify or -init")
	os.Exit(1)
}

func exit(err error) {
	if err != nil {
		fmt.Println(aurora.Red("dunlin: "), err.Error())
		os.Exit(1)
	}

	fmt.Println(aurora.Green("dunlin: "), "all done")
	os.Exit(0)
}
