package database

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/dunlinhq/dunlin/internal/retry"
	"github.com/dunlinhq/dunlin/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/xo/dburl"
)

var (
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	ErrNothingToVerify   = errors.New("no migrations to verify")
)

const (
	DefaultConnectionAttempts    = 30
	DefaultConnectionAttemptStep = 2 * time.Second

	scratchPrefix = "dunlin_verify"
)

type ConnectOptions struct {
	MaxAttempts int
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

// Open resolves the driver from the connection URL and waits for the
// instance to become reachable, polling with incremental retry. This is the
// health check the bootstrap step relies on.
func Open(ctx context.Context, rawURL string, options *ConnectOptions, lg logger.Logger) (*sqlx.DB, error) {
	u, err := dburl.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "could not parse database url %s", rawURL)
	}

	db, err := sqlx.Open(u.Driver, u.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s connection", u.Driver)
	}

	err = retry.Incremental(ctx, options.RetryStep, options.MaxAttempts, func(attempt int) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			lg.Debugf("ping attempt %d failed: %s", attempt, pingErr.Error())
			return retry.Error(pingErr, attempt)
		}

		return nil
	})

	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "database %s never became reachable", u.Driver)
	}

	return db, nil
}

// Verifier applies accumulated migrations against a freshly created scratch
// database. It is all-or-nothing: the first failing script aborts the run,
// nothing is rolled back or retried.
type Verifier struct {
	primaryURL string
	options    *ConnectOptions
	lg         logger.Logger
	clock      migration.ClockFunc
}

func NewVerifier(primaryURL string, options *ConnectOptions, lg logger.Logger) *Verifier {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &Verifier{
		primaryURL: primaryURL,
		options:    options,
		lg:         lg,
		clock:      time.Now,
	}
}

// Verify creates the scratch database, applies every migration in lexical
// order and drops the scratch afterwards. The drop is best-effort, the apply
// result is what counts.
func (v *Verifier) Verify(ctx context.Context, migrations migration.Migrations) error {
	if len(migrations) == 0 {
		return ErrNothingToVerify
	}

	u, err := dburl.Parse(v.primaryURL)
	if err != nil {
		return errors.Wrapf(err, "could not parse database url %s", v.primaryURL)
	}

	scratch, cleanup, err := v.createScratch(ctx, u)
	if err != nil {
		return err
	}

	defer cleanup()

	for _, m := range migrations.Sorted() {
		v.lg.SQL(m.Script)

		if _, err := scratch.ExecContext(ctx, m.Script); err != nil {
			return errors.Wrapf(err, "migration %s failed to apply", m.Key)
		}

		v.lg.Successf("verified %s", m.Key)
	}

	return nil
}

func (v *Verifier) createScratch(ctx context.Context, u *dburl.URL) (*sqlx.DB, func(), error) {
	name := fmt.Sprintf("%s_%s", scratchPrefix, v.clock().UTC().Format("20060102150405"))

	switch u.Driver {
	case "sqlite3":
		return v.createSqliteScratch(name)
	case "mysql", "postgres":
		return v.createServerScratch(ctx, u, name)
	default:
		return nil, nil, errors.Wrapf(ErrUnsupportedDriver, "%s", u.Driver)
	}
}

// createServerScratch creates a throwaway database on the primary instance
// and connects to it.
func (v *Verifier) createServerScratch(ctx context.Context, u *dburl.URL, name string) (*sqlx.DB, func(), error) {
	admin, err := Open(ctx, u.String(), v.options, v.lg)
	if err != nil {
		return nil, nil, err
	}

	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		_ = admin.Close()
		return nil, nil, errors.Wrapf(err, "could not create scratch database %s", name)
	}

	scratchURL, err := replaceDatabase(u, name)
	if err != nil {
		_ = admin.Close()
		return nil, nil, err
	}

	scratch, err := Open(ctx, scratchURL, v.options, v.lg)
	if err != nil {
		_ = admin.Close()
		return nil, nil, err
	}

	cleanup := func() {
		_ = scratch.Close()

		if _, err := admin.Exec("DROP DATABASE " + name); err != nil {
			v.lg.Error(errors.Wrapf(err, "could not drop scratch database %s", name))
		}

		_ = admin.Close()
	}

	return scratch, cleanup, nil
}

func (v *Verifier) createSqliteScratch(name string) (*sqlx.DB, func(), error) {
	path := filepath.Join(os.TempDir(), name+".db")

	scratch, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not open sqlite scratch database")
	}

	cleanup := func() {
		_ = scratch.Close()
		_ = os.Remove(path)
	}

	return scratch, cleanup, nil
}

// replaceDatabase rewrites the connection URL to point at the scratch
// database. MySQL additionally needs multi statement support because a
// migration script usually holds more than one statement.
func replaceDatabase(u *dburl.URL, name string) (string, error) {
	rebuilt, err := url.Parse(u.String())
	if err != nil {
		return "", errors.Wrap(err, "could not rebuild connection url")
	}

	rebuilt.Path = "/" + name

	if u.Driver == "mysql" {
		q := rebuilt.Query()
		q.Set("multiStatements", "true")
		rebuilt.RawQuery = q.Encode()
	}

	s := rebuilt.String()
	if !strings.Contains(s, "://") {
		return "", errors.Wrapf(ErrUnsupportedDriver, "cannot rewrite url %s", u.String())
	}

	return s, nil
}
