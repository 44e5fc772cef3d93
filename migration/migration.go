package migration

import (
	"bytes"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidVersion = errors.New("invalid version format")
var ErrInvalidSuffix = errors.New("invalid migration suffix")

// Suffix classifies a migration unit. The baseline generator produces
// exactly one SuffixInitial unit, every later unit is SuffixSchemaUpdate.
type Suffix string

const (
	SuffixInitial      Suffix = "initial"
	SuffixSchemaUpdate Suffix = "schema_update"
)

const (
	// VersionLayout is the wall-clock layout of a version identifier,
	// second granularity.
	VersionLayout = "20060102150405"

	VersionLength = 14
)

var versionRx = regexp.MustCompile(`^\d{14}$`)

type (
	Version struct {
		Value     string
		CreatedAt time.Time
	}

	// Migration is a single immutable unit: a versioned directory holding
	// one SQL script and a human-readable note.
	Migration struct {
		Key     string
		Version Version
		Suffix  Suffix
		Script  string
		Note    string
	}

	ClockFunc func() time.Time
)

func VersionFromString(s string) (Version, error) {
	if !versionRx.MatchString(s) {
		return Version{}, errors.Wrapf(ErrInvalidVersion, "%s", s)
	}

	t, err := time.Parse(VersionLayout, s)
	if err != nil {
		return Version{}, errors.Wrapf(ErrInvalidVersion, "%s", s)
	}

	return Version{Value: s, CreatedAt: t}, nil
}

func SuffixFromString(s string) (Suffix, error) {
	switch Suffix(s) {
	case SuffixInitial:
		return SuffixInitial, nil
	case SuffixSchemaUpdate:
		return SuffixSchemaUpdate, nil
	default:
		return "", errors.Wrapf(ErrInvalidSuffix, "%s", s)
	}
}

// GenerateVersion derives a version identifier from the clock and bumps it
// forward one second at a time until it is strictly greater than every
// version in existing. Two generators that can see each other's output can
// therefore never collide even within the same wall-clock second.
func GenerateVersion(cf ClockFunc, existing []Version) Version {
	t := cf().UTC()

	var max string
	for i := range existing {
		if existing[i].Value > max {
			max = existing[i].Value
		}
	}

	v := t.Format(VersionLayout)
	for v <= max {
		t = t.Add(time.Second)
		v = t.Format(VersionLayout)
	}

	return Version{Value: v, CreatedAt: t}
}

func CreateKey(v Version, suffix Suffix) string {
	var result bytes.Buffer
	result.WriteString(v.Value)
	result.WriteString("_")
	result.WriteString(string(suffix))
	return result.String()
}

// ParseKey splits a unit directory name back into version and suffix.
func ParseKey(key string) (Version, Suffix, error) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return Version{}, "", errors.Wrapf(ErrInvalidVersion, "key %s", key)
	}

	v, err := VersionFromString(parts[0])
	if err != nil {
		return Version{}, "", err
	}

	suffix, err := SuffixFromString(parts[1])
	if err != nil {
		return Version{}, "", err
	}

	return v, suffix, nil
}

func New(v Version, suffix Suffix, script, note string) *Migration {
	return &Migration{
		Key:     CreateKey(v, suffix),
		Version: v,
		Suffix:  suffix,
		Script:  script,
		Note:    note,
	}
}

type Migrations []*Migration

func (m Migrations) Keys() (result []string) {
	for i := range m {
		result = append(result, m[i].Key)
	}
	return result
}

func (m Migrations) Versions() (result []Version) {
	for i := range m {
		result = append(result, m[i].Version)
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Key < m[j].Key
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

// Sorted returns the migrations in lexical key order, which for valid keys
// equals version order. The verifier relies on this ordering.
func (m Migrations) Sorted() Migrations {
	out := make(Migrations, len(m))
	copy(out, m)
	sort.Sort(out)
	return out
}

func InVersions(version Version, versions []Version) bool {
	for _, v := range versions {
		if v.Value == version.Value {
			return true
		}
	}

	return false
}
