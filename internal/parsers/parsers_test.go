package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"node_modules/lodash", "lodash"},
		{"node_modules/@types/node", "@types/node"},
		{"node_modules/express/node_modules/debug", "debug"},
		{"node_modules/a/node_modules/@scope/b", "@scope/b"},
		{"node_modules/@scope/a/node_modules/b", "b"},
		{"packages/ui", "ui"},
		{"@acme/tool", "@acme/tool"},
		{"lodash", "lodash"},
		{"node_modules/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.path))
		})
	}
}

func TestExactVersion(t *testing.T) {
	tests := []struct {
		in        string
		want      string
		wantExact bool
	}{
		{"^1.12.2", "1.12.2", true},
		{"~4.17.21", "4.17.21", true},
		{"1.0.0-beta.1", "1.0.0-beta.1", true},
		{" ^2.0.0 ", "2.0.0", true},
		{">=1.2.0", ">=1.2.0", false},
		{"latest", "latest", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, exact := ExactVersion(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantExact, exact)
		})
	}
}

func TestPackageJSONParser_Parse(t *testing.T) {
	content := `{
  "name": "my-app",
  "version": "1.0.0",
  "dependencies": {
    "express": "^4.18.0",
    "axios": "^1.12.2"
  },
  "devDependencies": {
    "jest": "^29.0.0",
    "axios": "1.13.0"
  }
}`

	declared, err := (&PackageJSONParser{}).Parse([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, []string{"express", "axios", "jest"}, declared.Names)
	assert.Equal(t, "1.13.0", declared.Ranges["axios"], "later group overwrites earlier one")
	assert.Equal(t, "^4.18.0", declared.Ranges["express"])
	assert.True(t, declared.Has("jest"))
	assert.False(t, declared.Has("lodash"))
}

func TestPackageJSONParser_MissingGroups(t *testing.T) {
	declared, err := (&PackageJSONParser{}).Parse([]byte(`{"name": "empty", "dependencies": null}`))
	require.NoError(t, err)
	assert.Equal(t, 0, declared.Len())
}

func TestPackageJSONParser_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":           `{"dependencies": `,
		"non-string version": `{"dependencies": {"a": {"version": "1"}}}`,
		"group not object":   `{"dependencies": ["a"]}`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := (&PackageJSONParser{}).Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestReadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadManifest(filepath.Join(dir, "missing.json"))
	assert.True(t, errors.Is(err, errors.ErrCodeManifestUnreadable))

	bad := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = ReadManifest(bad)
	assert.True(t, errors.Is(err, errors.ErrCodeManifestUnreadable))
}

const lockV3 = `{
  "name": "my-app",
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "my-app", "version": "1.0.0"},
    "node_modules/axios": {"version": "1.12.2"},
    "node_modules/follow-redirects": {"version": "1.15.0"},
    "node_modules/@types/node": {"version": "20.1.0", "dev": true},
    "node_modules/ui": {"resolved": "packages/ui", "link": true},
    "packages/ui": {"name": "ui"},
    "node_modules/express/node_modules/debug": {"version": "2.6.9"},
    "node_modules/debug": {"version": "4.3.4"}
  }
}`

func TestPackageLockParser_Parse(t *testing.T) {
	idx, err := (&PackageLockParser{}).Parse([]byte(lockV3))
	require.NoError(t, err)

	want := []models.InstalledPackage{
		{Name: "axios", Version: "1.12.2"},
		{Name: "follow-redirects", Version: "1.15.0"},
		{Name: "@types/node", Version: "20.1.0"},
		{Name: "debug", Version: "4.3.4"},
	}
	assert.Equal(t, want, idx.Packages)

	for _, p := range idx.Packages {
		assert.NotEmpty(t, p.Name, "root entry must be skipped")
		assert.NotEmpty(t, p.Version, "versionless entries must be skipped")
	}

	require.Len(t, idx.Conflicts, 1)
	c := idx.Conflicts[0]
	assert.Equal(t, "debug", c.Name)
	assert.Equal(t, "node_modules/debug", c.KeptPath)
	assert.Equal(t, "2.6.9", c.DroppedVersion)
	assert.False(t, c.ShadowsNewer())

	v, ok := idx.Version("debug")
	assert.True(t, ok)
	assert.Equal(t, "4.3.4", v)
}

func TestPackageLockParser_DeterministicOrder(t *testing.T) {
	first, err := (&PackageLockParser{}).Parse([]byte(lockV3))
	require.NoError(t, err)
	for range 10 {
		again, err := (&PackageLockParser{}).Parse([]byte(lockV3))
		require.NoError(t, err)
		assert.Equal(t, first.Packages, again.Packages)
	}
}

func TestPackageLockParser_V1Fallback(t *testing.T) {
	content := `{
  "lockfileVersion": 1,
  "dependencies": {
    "lodash": {"version": "4.17.21"},
    "left-pad": {"version": "1.3.0", "dev": true}
  }
}`
	idx, err := (&PackageLockParser{}).Parse([]byte(content))
	require.NoError(t, err)
	assert.Equal(t, []models.InstalledPackage{
		{Name: "lodash", Version: "4.17.21"},
		{Name: "left-pad", Version: "1.3.0"},
	}, idx.Packages)
}

func TestPackageLockParser_NoTable(t *testing.T) {
	idx, err := (&PackageLockParser{}).Parse([]byte(`{"lockfileVersion": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestConflict_ShadowsNewer(t *testing.T) {
	c := Conflict{KeptVersion: "1.0.0", DroppedVersion: "2.0.0"}
	assert.True(t, c.ShadowsNewer())
}

func TestReadLockfile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadLockfile(filepath.Join(dir, "package-lock.json"))
	assert.True(t, errors.Is(err, errors.ErrCodeLockfileUnreadable))

	bad := filepath.Join(dir, "bad-lock.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"packages": 3}`), 0o644))
	_, err = ReadLockfile(bad)
	assert.True(t, errors.Is(err, errors.ErrCodeLockfileUnreadable))
}
