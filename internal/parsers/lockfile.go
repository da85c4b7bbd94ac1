package parsers

import (
	"encoding/json"
	"os"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

const nodeModules = "node_modules/"

// NormalizeName derives the package name from a lock file install path.
//
//	node_modules/lodash                         -> lodash
//	node_modules/@types/node                    -> @types/node
//	node_modules/express/node_modules/debug     -> debug
//	node_modules/a/node_modules/@scope/b        -> @scope/b
//
// Paths without a node_modules segment (workspace members) fall back to
// their last path segment unless they are scoped.
func NormalizeName(path string) string {
	name := path
	if idx := strings.LastIndex(name, nodeModules); idx >= 0 {
		name = name[idx+len(nodeModules):]
	}
	if strings.Contains(name, "/") && !strings.HasPrefix(name, "@") {
		name = name[strings.LastIndex(name, "/")+1:]
	}
	return name
}

// Conflict records two install paths that normalize to the same name.
// The later entry in table order is kept.
type Conflict struct {
	Name           string
	KeptPath       string
	KeptVersion    string
	DroppedPath    string
	DroppedVersion string
}

// ShadowsNewer reports whether the dropped entry had a higher version than the
// kept one.
func (c Conflict) ShadowsNewer() bool {
	return semver.Compare("v"+c.DroppedVersion, "v"+c.KeptVersion) > 0
}

// Index maps normalized package names to installed versions in lock file order
type Index struct {
	Packages  []models.InstalledPackage
	Conflicts []Conflict

	pos   map[string]int
	paths map[string]string
}

func newIndex() *Index {
	return &Index{pos: make(map[string]int), paths: make(map[string]string)}
}

func (idx *Index) add(path, name, version string) {
	i, seen := idx.pos[name]
	if !seen {
		idx.pos[name] = len(idx.Packages)
		idx.paths[name] = path
		idx.Packages = append(idx.Packages, models.InstalledPackage{Name: name, Version: version})
		return
	}

	idx.Conflicts = append(idx.Conflicts, Conflict{
		Name:           name,
		KeptPath:       path,
		KeptVersion:    version,
		DroppedPath:    idx.paths[name],
		DroppedVersion: idx.Packages[i].Version,
	})
	idx.paths[name] = path
	idx.Packages[i].Version = version
}

// Len returns the number of indexed packages
func (idx *Index) Len() int { return len(idx.Packages) }

// Version returns the installed version of name
func (idx *Index) Version(name string) (string, bool) {
	i, ok := idx.pos[name]
	if !ok {
		return "", false
	}
	return idx.Packages[i].Version, true
}

// PackageLockParser parses package-lock.json files
type PackageLockParser struct{}

// packageLock represents the structure of package-lock.json
type packageLock struct {
	LockfileVersion int `json:"lockfileVersion"`
	// V2/V3 format, keyed by install path
	Packages orderedObject `json:"packages"`
	// V1 format, keyed by package name
	Dependencies orderedObject `json:"dependencies"`
}

type lockEntry struct {
	Version string `json:"version"`
}

// Parse indexes the lock file's package table. The root entry ("") and
// entries without a version (workspace links) are skipped.
func (p *PackageLockParser) Parse(content []byte) (*Index, error) {
	var lock packageLock
	if err := json.Unmarshal(content, &lock); err != nil {
		return nil, err
	}

	idx := newIndex()

	err := lock.Packages.each(func(path string, raw json.RawMessage) error {
		if path == "" {
			return nil
		}
		var entry lockEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		if entry.Version == "" {
			return nil
		}
		idx.add(path, NormalizeName(path), entry.Version)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// V1 fallback: only the top level of the dependency tree is indexed
	if len(lock.Packages.keys) == 0 {
		err := lock.Dependencies.each(func(name string, raw json.RawMessage) error {
			var entry lockEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			if entry.Version != "" {
				idx.add(name, name, entry.Version)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return idx, nil
}

// ReadLockfile loads and indexes the lock file at path. Any failure is a
// LOCKFILE_UNREADABLE error; callers fall back to the manifest.
func ReadLockfile(path string) (*Index, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLockfileUnreadable, err, "cannot read lock file %s", path)
	}

	idx, err := (&PackageLockParser{}).Parse(content)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeLockfileUnreadable, err, "invalid lock file %s", path)
	}
	return idx, nil
}
