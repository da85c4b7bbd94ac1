package parsers

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

// PackageJSONParser parses package.json manifests (direct dependencies only)
type PackageJSONParser struct{}

// packageJSON represents the structure of package.json
type packageJSON struct {
	Name            string        `json:"name"`
	Version         string        `json:"version"`
	Dependencies    orderedObject `json:"dependencies"`
	DevDependencies orderedObject `json:"devDependencies"`
}

// Parse merges dependencies and devDependencies into one mapping.
// A name present in both groups takes its devDependencies range.
func (p *PackageJSONParser) Parse(content []byte) (*models.Declared, error) {
	var pkg packageJSON
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, err
	}

	declared := models.NewDeclared()
	for _, group := range []*orderedObject{&pkg.Dependencies, &pkg.DevDependencies} {
		err := group.each(func(name string, raw json.RawMessage) error {
			var versionRange string
			if err := json.Unmarshal(raw, &versionRange); err != nil {
				return fmt.Errorf("dependency %q: version must be a string", name)
			}
			declared.Set(name, versionRange)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return declared, nil
}

// ReadManifest loads and parses the manifest at path. Any failure is a
// MANIFEST_UNREADABLE error.
func ReadManifest(path string) (*models.Declared, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestUnreadable, err, "cannot read manifest %s", path)
	}

	declared, err := (&PackageJSONParser{}).Parse(content)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeManifestUnreadable, err, "invalid manifest %s", path)
	}
	return declared, nil
}
