package scanner

import "github.com/ethanolivertroy/depaudit/internal/models"

// Classify labels each installed package direct when the manifest declares
// it and transitive otherwise. The output has one entry per input, in input
// order.
func Classify(installed []models.InstalledPackage, declared *models.Declared) []models.ClassifiedPackage {
	out := make([]models.ClassifiedPackage, len(installed))
	for i, pkg := range installed {
		class := models.Transitive
		if declared != nil && declared.Has(pkg.Name) {
			class = models.Direct
		}
		out[i] = models.ClassifiedPackage{InstalledPackage: pkg, Classification: class}
	}
	return out
}

// directPackages turns the declared ranges into the installed set used when
// no lock file data is available
func directPackages(declared *models.Declared) []models.InstalledPackage {
	out := make([]models.InstalledPackage, 0, declared.Len())
	for _, name := range declared.Names {
		out = append(out, models.InstalledPackage{Name: name, Version: declared.Ranges[name]})
	}
	return out
}
