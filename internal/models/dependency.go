package models

import "fmt"

// Ecosystem is the package ecosystem name used when querying registries
const Ecosystem = "npm"

// Classification labels an installed package relative to the manifest
type Classification string

const (
	Direct     Classification = "direct"
	Transitive Classification = "transitive"
)

// ScanMode selects which packages a scan covers
type ScanMode string

const (
	// ModeDirect scans only the dependencies declared in the manifest
	ModeDirect ScanMode = "direct"
	// ModeTransitive scans every package recorded in the lock file
	ModeTransitive ScanMode = "transitive"
)

// ParseScanMode validates a mode string
func ParseScanMode(s string) (ScanMode, error) {
	switch ScanMode(s) {
	case ModeDirect, ModeTransitive:
		return ScanMode(s), nil
	case "":
		return ModeTransitive, nil
	}
	return "", fmt.Errorf("unknown scan mode %q (want direct or transitive)", s)
}

// Declared is the merged name -> version range mapping read from a manifest.
// Names keeps first-insertion order so direct-only scans are deterministic.
type Declared struct {
	Names  []string
	Ranges map[string]string
}

// NewDeclared returns an empty Declared mapping
func NewDeclared() *Declared {
	return &Declared{Ranges: make(map[string]string)}
}

// Set records a declared range; a later call for the same name overwrites
// the range but keeps the original position.
func (d *Declared) Set(name, versionRange string) {
	if _, ok := d.Ranges[name]; !ok {
		d.Names = append(d.Names, name)
	}
	d.Ranges[name] = versionRange
}

// Has reports whether name is declared
func (d *Declared) Has(name string) bool {
	_, ok := d.Ranges[name]
	return ok
}

// Len returns the number of declared dependencies
func (d *Declared) Len() int { return len(d.Names) }

// InstalledPackage is a package as recorded in the lock file
type InstalledPackage struct {
	Name    string
	Version string
}

// String returns a human-readable representation
func (p InstalledPackage) String() string {
	return p.Name + "@" + p.Version
}

// ClassifiedPackage is an installed package labelled direct or transitive
type ClassifiedPackage struct {
	InstalledPackage
	Classification Classification
}
