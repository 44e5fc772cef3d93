package migration

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_VersionFromString(t *testing.T) {
	t.Run("valid 14 digit version", func(t *testing.T) {
		v, err := VersionFromString("20240816093055")
		require.NoError(t, err)
		assert.Equal(t, "20240816093055", v.Value)
		assert.Equal(t, 2024, v.CreatedAt.Year())
	})

	invalid := []string{"", "2024", "20240816", "notaversion123", "202408160930555"}
	for _, s := range invalid {
		t.Run("invalid "+s, func(t *testing.T) {
			_, err := VersionFromString(s)
			assert.True(t, errors.Is(err, ErrInvalidVersion))
		})
	}
}

func Test_GenerateVersion(t *testing.T) {
	clock := func() time.Time {
		return time.Date(2024, 8, 16, 9, 30, 55, 0, time.UTC)
	}

	t.Run("no existing versions", func(t *testing.T) {
		v := GenerateVersion(clock, nil)
		assert.Equal(t, "20240816093055", v.Value)
	})

	t.Run("bumps past the max existing version", func(t *testing.T) {
		existing := []Version{
			{Value: "20240816093055"},
			{Value: "20230101000000"},
		}

		v := GenerateVersion(clock, existing)
		assert.Equal(t, "20240816093056", v.Value)
	})

	t.Run("bumps past a future existing version", func(t *testing.T) {
		existing := []Version{{Value: "20240816093100"}}

		v := GenerateVersion(clock, existing)
		assert.Equal(t, "20240816093101", v.Value)
		assert.True(t, v.Value > existing[0].Value)
	})
}

func Test_Keys(t *testing.T) {
	v, err := VersionFromString("20240816093055")
	require.NoError(t, err)

	key := CreateKey(v, SuffixInitial)
	assert.Equal(t, "20240816093055_initial", key)

	parsedV, suffix, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, v.Value, parsedV.Value)
	assert.Equal(t, SuffixInitial, suffix)

	_, _, err = ParseKey("20240816093055")
	assert.Error(t, err)

	_, _, err = ParseKey("20240816093055_weird")
	assert.True(t, errors.Is(err, ErrInvalidSuffix))
}

func Test_MigrationsSorting(t *testing.T) {
	a := New(Version{Value: "20240816093056"}, SuffixSchemaUpdate, "ALTER TABLE foo ADD COLUMN bar INT;", "add bar")
	b := New(Version{Value: "20240816093055"}, SuffixInitial, "CREATE TABLE foo (id INT);", "baseline")

	sorted := Migrations{a, b}.Sorted()
	assert.Equal(t, []string{"20240816093055_initial", "20240816093056_schema_update"}, sorted.Keys())
}
