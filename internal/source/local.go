package source

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dunlinhq/dunlin/internal/logger"
	"github.com/dunlinhq/dunlin/migration"
	"github.com/pkg/errors"
)

const DefaultMigrationsFolder = "./migrations"

const (
	ScriptFilename = "migration.sql"
	NoteFilename   = "README.md"
	LockFilename   = "migration_lock.toml"

	unitNameFormat = `^(?P<version>\d{14})_(?P<suffix>initial|schema_update)$`
)

var (
	ErrNotAMigrationUnit  = errors.New("not a migration unit directory")
	ErrUnitAlreadyExists  = errors.New("migration unit already exists")
	ErrLockProviderEmpty  = errors.New("lock file provider is empty")
	ErrLockFileMalformed  = errors.New("lock file is malformed")
	ErrFolderInvalid      = errors.New("migrations folder is invalid")
)

var unitNameRx = regexp.MustCompile(unitNameFormat)

// LocalDirSource reads and writes migration units under a single folder.
// Each unit is a directory <version>_<suffix> holding migration.sql and
// README.md; the folder also carries a single migration_lock.toml marker.
type LocalDirSource struct {
	folder string
	lg     logger.Logger
}

func NewLocalDirSource(folder string, lg logger.Logger) *LocalDirSource {
	return &LocalDirSource{folder: folder, lg: lg}
}

func (s *LocalDirSource) Folder() string {
	return s.folder
}

func (s *LocalDirSource) IsValid() bool {
	info, err := os.Stat(s.folder)
	if os.IsNotExist(err) {
		return false
	}

	return info.IsDir()
}

// IsEmpty reports whether the folder holds no migration units yet. The lock
// file and loose files do not count.
func (s *LocalDirSource) IsEmpty() (bool, error) {
	entries, err := os.ReadDir(s.folder)
	if os.IsNotExist(err) {
		return true, nil
	}

	if err != nil {
		return false, errors.Wrapf(err, "could not read migrations folder %s", s.folder)
	}

	for _, e := range entries {
		if e.IsDir() && unitNameRx.MatchString(e.Name()) {
			return false, nil
		}
	}

	return true, nil
}

// Select reads every migration unit from the folder in lexical order.
func (s *LocalDirSource) Select(ctx context.Context) (migration.Migrations, error) {
	entries, err := os.ReadDir(s.folder)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "could not read migrations folder %s", s.folder)
	}

	var result migration.Migrations

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !e.IsDir() {
			if e.Name() == LockFilename {
				continue
			}

			s.lg.Debugf("skipping non-unit entry %s", e.Name())
			continue
		}

		m, err := s.readOne(e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "with unit %s", e.Name())
		}

		result = append(result, m)
	}

	return result.Sorted(), nil
}

func (s *LocalDirSource) readOne(key string) (*migration.Migration, error) {
	if !unitNameRx.MatchString(key) {
		return nil, errors.Wrapf(ErrNotAMigrationUnit, "%s", key)
	}

	v, suffix, err := migration.ParseKey(key)
	if err != nil {
		return nil, err
	}

	script, err := os.ReadFile(filepath.Join(s.folder, key, ScriptFilename))
	if err != nil {
		return nil, errors.Wrapf(err, "could not read script of unit %s", key)
	}

	// the note is optional on read, older units may predate it
	note, err := os.ReadFile(filepath.Join(s.folder, key, NoteFilename))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "could not read note of unit %s", key)
	}

	return migration.New(v, suffix, string(script), string(note)), nil
}

func (s *LocalDirSource) AlreadyExists(key string) bool {
	info, err := os.Stat(filepath.Join(s.folder, key))
	if os.IsNotExist(err) {
		return false
	}
	return info.IsDir()
}

// Create writes a new unit directory with its script and note. Units are
// immutable, an existing directory with the same key is an error.
func (s *LocalDirSource) Create(m *migration.Migration) error {
	if s.AlreadyExists(m.Key) {
		return errors.Wrapf(ErrUnitAlreadyExists, "%s", m.Key)
	}

	dir := filepath.Join(s.folder, m.Key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create unit directory %s", dir)
	}

	scriptPath := filepath.Join(dir, ScriptFilename)
	if err := os.WriteFile(scriptPath, []byte(m.Script), 0o644); err != nil {
		return errors.Wrapf(err, "could not write %s", scriptPath)
	}

	notePath := filepath.Join(dir, NoteFilename)
	if err := os.WriteFile(notePath, []byte(m.Note), 0o644); err != nil {
		return errors.Wrapf(err, "could not write %s", notePath)
	}

	s.lg.Successf("created migration unit %s", m.Key)

	return nil
}

// EnsureLock writes the provider marker once. An existing lock file is left
// untouched, whatever its provider says.
func (s *LocalDirSource) EnsureLock(provider string) error {
	if provider == "" {
		return ErrLockProviderEmpty
	}

	path := filepath.Join(s.folder, LockFilename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(s.folder, 0o755); err != nil {
		return errors.Wrapf(err, "could not create migrations folder %s", s.folder)
	}

	content := "# Please do not edit this file manually\nprovider = \"" + provider + "\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "could not write lock file %s", path)
	}

	return nil
}

// ReadLock returns the provider recorded in the lock file.
func (s *LocalDirSource) ReadLock() (string, error) {
	b, err := os.ReadFile(filepath.Join(s.folder, LockFilename))
	if err != nil {
		return "", errors.Wrap(err, "could not read lock file")
	}

	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "provider") {
			continue
		}

		_, value, found := strings.Cut(line, "=")
		if !found {
			break
		}

		provider := strings.Trim(strings.TrimSpace(value), `"`)
		if provider == "" {
			return "", ErrLockProviderEmpty
		}

		return provider, nil
	}

	return "", ErrLockFileMalformed
}
