package resolver_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vigilproject/vigil/internal/adapters/resolver"
	"github.com/vigilproject/vigil/internal/core/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolver_Resolve_GlobAndDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.yaml", "a")
	b := writeFile(t, dir, "b.yaml", "b")

	r := resolver.New()
	paths, err := r.Resolve([]string{
		filepath.Join(dir, "*.yaml"),
		a, // already covered by the glob
	})

	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, paths, "sorted and deduplicated")
}

func TestResolver_Resolve_MissingLiteralKept(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "not-yet-created")

	r := resolver.New()
	paths, err := r.Resolve([]string{missing})

	require.NoError(t, err)
	assert.Equal(t, []string{missing}, paths)
}

func TestResolver_Resolve_BadPattern(t *testing.T) {
	r := resolver.New()
	_, err := r.Resolve([]string{"[unclosed"})

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidWatchPattern)
}

func TestResolver_MaxMtime(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old", "1")
	fresh := writeFile(t, dir, "fresh", "2")

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	r := resolver.New()
	maxMtime, err := r.MaxMtime([]string{old, fresh})
	require.NoError(t, err)

	info, err := os.Stat(fresh)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().UnixNano(), maxMtime)
}

func TestResolver_MaxMtime_MissingPathsContributeZero(t *testing.T) {
	r := resolver.New()
	maxMtime, err := r.MaxMtime([]string{filepath.Join(t.TempDir(), "missing")})

	require.NoError(t, err)
	assert.Zero(t, maxMtime)
}

func TestResolver_Fingerprint_ChangesOnTouch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "watched", "1")

	r := resolver.New()
	before, err := r.Fingerprint([]string{path})
	require.NoError(t, err)

	again, err := r.Fingerprint([]string{path})
	require.NoError(t, err)
	assert.Equal(t, before, again, "stable while nothing changes")

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	after, err := r.Fingerprint([]string{path})
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}
