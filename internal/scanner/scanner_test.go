package scanner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethanolivertroy/depaudit/internal/errors"
	"github.com/ethanolivertroy/depaudit/internal/logging"
	"github.com/ethanolivertroy/depaudit/internal/metrics"
	"github.com/ethanolivertroy/depaudit/internal/models"
)

// fakeEnricher answers from fixed tables and records every call
type fakeEnricher struct {
	mu         sync.Mutex
	metadata   map[string]*models.VersionMetadata
	advisories map[string][]models.Advisory
	failMeta   map[string]bool
	failAdv    map[string]bool
	queried    []string
	starts     []time.Time

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        time.Duration
}

func newFakeEnricher() *fakeEnricher {
	return &fakeEnricher{
		metadata:   map[string]*models.VersionMetadata{},
		advisories: map[string][]models.Advisory{},
		failMeta:   map[string]bool{},
		failAdv:    map[string]bool{},
	}
}

func (f *fakeEnricher) FetchVersionMetadata(ctx context.Context, name, version string) (*models.VersionMetadata, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.queried = append(f.queried, name+"@"+version)
	f.starts = append(f.starts, time.Now())
	f.mu.Unlock()

	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.failMeta[name] {
		return nil, fmt.Errorf("registry returned 503")
	}
	return f.metadata[name], nil
}

func (f *fakeEnricher) FetchAdvisories(ctx context.Context, name, version string) ([]models.Advisory, error) {
	if f.failAdv[name] {
		return nil, fmt.Errorf("connection reset")
	}
	return f.advisories[name], nil
}

// annotatingEnricher marks every advisory known exploited
type annotatingEnricher struct {
	*fakeEnricher
	calls atomic.Int32
}

func (a *annotatingEnricher) Annotate(ctx context.Context, advisories []models.Advisory) error {
	a.calls.Add(1)
	for i := range advisories {
		advisories[i].KnownExploited = true
	}
	return fmt.Errorf("epss unavailable")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const axiosManifest = `{
  "name": "demo",
  "dependencies": {"axios": "^1.12.2"}
}`

const axiosLock = `{
  "name": "demo",
  "lockfileVersion": 3,
  "packages": {
    "": {"name": "demo", "dependencies": {"axios": "^1.12.2"}},
    "node_modules/axios": {"version": "1.12.2"},
    "node_modules/follow-redirects": {"version": "1.15.0"}
  }
}`

func testConfig(manifest string) *models.Config {
	config := models.DefaultConfig()
	config.ManifestPath = manifest
	config.Delay = 0
	return config
}

func published(t *testing.T, s string) models.PublishedAt {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return models.Published(ts)
}

func TestClassify(t *testing.T) {
	declared := models.NewDeclared()
	declared.Set("axios", "^1.12.2")
	declared.Set("typescript", "^5.0.0")

	installed := []models.InstalledPackage{
		{Name: "follow-redirects", Version: "1.15.0"},
		{Name: "axios", Version: "1.12.2"},
		{Name: "@types/node", Version: "20.1.0"},
	}

	got := Classify(installed, declared)
	require.Len(t, got, 3)
	assert.Equal(t, models.Transitive, got[0].Classification)
	assert.Equal(t, models.Direct, got[1].Classification)
	assert.Equal(t, models.Transitive, got[2].Classification)
	for i := range installed {
		assert.Equal(t, installed[i], got[i].InstalledPackage, "order is preserved")
	}

	assert.Equal(t, got, Classify(installed, declared), "classification is idempotent")
	assert.Empty(t, Classify(nil, declared))
}

func TestScan_DirectAndFailedTransitive(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", axiosManifest)
	writeFile(t, dir, "package-lock.json", axiosLock)

	enricher := newFakeEnricher()
	enricher.metadata["axios"] = &models.VersionMetadata{
		PublishedAt: published(t, "2025-09-14T12:59:27Z"),
		IsLatest:    true,
	}
	enricher.failMeta["follow-redirects"] = true
	enricher.failAdv["follow-redirects"] = true

	var logs bytes.Buffer
	m := metrics.NewMetrics()
	s := New(testConfig(manifest), enricher, logging.New(&logs, log.InfoLevel), m)

	rep, res, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Equal(t, filepath.Join(dir, "package-lock.json"), res.Source)

	assert.Equal(t, 2, rep.Summary.TotalPackages)
	assert.Equal(t, 1, rep.Summary.DirectCount)
	assert.Equal(t, 1, rep.Summary.TransitiveCount)
	assert.Equal(t, 0, rep.Summary.VulnerablePackages)

	require.Len(t, rep.Results, 2)
	axios := rep.Results[0]
	assert.Equal(t, "axios", axios.Package)
	assert.Equal(t, models.Direct, axios.DependencyType)
	assert.Equal(t, "2025-09-14T12:59:27Z", axios.PublishedAt.String())
	assert.True(t, axios.IsDefault)

	fr := rep.Results[1]
	assert.Equal(t, "follow-redirects", fr.Package)
	assert.Equal(t, models.Transitive, fr.DependencyType)
	assert.Equal(t, "unknown", fr.PublishedAt.String())
	assert.Equal(t, 0, fr.VulnerabilityCount)
	assert.NotNil(t, fr.Vulnerabilities)

	assert.Contains(t, logs.String(), "Enrichment unavailable")
	assert.Contains(t, logs.String(), "follow-redirects")
}

func TestScan_VulnerableDirectPackage(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", `{"dependencies": {"minimist": "0.0.8"}}`)
	writeFile(t, dir, "package-lock.json", `{"lockfileVersion": 3, "packages": {
		"": {},
		"node_modules/minimist": {"version": "0.0.8"}
	}}`)

	enricher := newFakeEnricher()
	enricher.advisories["minimist"] = []models.Advisory{
		{ID: "GHSA-1", Title: "one"},
		{ID: "GHSA-2", Title: "two"},
		{ID: "GHSA-3", Title: "three"},
	}

	rep, _, err := New(testConfig(manifest), enricher, logging.Discard(), nil).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Results, 1)
	assert.Equal(t, 3, rep.Results[0].VulnerabilityCount)
	assert.Equal(t, 1, rep.Summary.VulnerablePackages)
	assert.Equal(t, 1, rep.Summary.VulnerableDirect)
	assert.Equal(t, 0, rep.Summary.VulnerableTransitive)
}

func TestScan_DegradedWithoutLockfile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", `{
		"dependencies": {"axios": "^1.12.2", "lodash": "~4.17.21"},
		"devDependencies": {"jest": "29.7.0"}
	}`)

	enricher := newFakeEnricher()
	var logs bytes.Buffer
	rep, res, err := New(testConfig(manifest), enricher, logging.New(&logs, log.InfoLevel), nil).Scan(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.Equal(t, manifest, res.Source)
	assert.Contains(t, logs.String(), "Lock file unreadable")

	require.Len(t, rep.Results, 3)
	for _, r := range rep.Results {
		assert.Equal(t, models.Direct, r.DependencyType, r.Package)
	}
	assert.Equal(t, "^1.12.2", rep.Results[0].CurrentVersion, "record keeps the declared range")
	assert.Equal(t, []string{"axios@1.12.2", "lodash@4.17.21", "jest@29.7.0"}, enricher.queried,
		"range markers are stripped before querying")
}

func TestScan_DegradedWithEmptyLockfile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", axiosManifest)
	writeFile(t, dir, "package-lock.json", `{"lockfileVersion": 3, "packages": {"": {"name": "demo"}}}`)

	_, res, err := New(testConfig(manifest), newFakeEnricher(), logging.Discard(), nil).Scan(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Len(t, res.Packages, 1)
	assert.Equal(t, models.Direct, res.Packages[0].Classification)
}

func TestScan_DirectModeIgnoresLockfile(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", axiosManifest)
	writeFile(t, dir, "package-lock.json", axiosLock)

	config := testConfig(manifest)
	config.Mode = models.ModeDirect

	enricher := newFakeEnricher()
	rep, res, err := New(config, enricher, logging.Discard(), nil).Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "axios", rep.Results[0].Package)
	assert.Equal(t, []string{"axios@1.12.2"}, enricher.queried)
}

func TestScan_ExplicitLockfilePath(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", axiosManifest)
	other := t.TempDir()
	lock := writeFile(t, other, "custom-lock.json", axiosLock)

	config := testConfig(manifest)
	config.LockfilePath = lock

	s := New(config, newFakeEnricher(), logging.Discard(), nil)
	assert.Equal(t, lock, s.LockfilePath())

	res, err := s.Resolve()
	require.NoError(t, err)
	assert.Len(t, res.Packages, 2)
}

func TestScan_ManifestUnreadable(t *testing.T) {
	enricher := newFakeEnricher()
	s := New(testConfig(filepath.Join(t.TempDir(), "package.json")), enricher, logging.Discard(), nil)

	rep, _, err := s.Scan(context.Background())
	assert.Nil(t, rep)
	assert.True(t, errors.Is(err, errors.ErrCodeManifestUnreadable))
	assert.Empty(t, enricher.queried, "nothing is enriched")
}

func TestResolve_Idempotent(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", axiosManifest)
	writeFile(t, dir, "package-lock.json", axiosLock)

	s := New(testConfig(manifest), newFakeEnricher(), logging.Discard(), nil)
	first, err := s.Resolve()
	require.NoError(t, err)
	second, err := s.Resolve()
	require.NoError(t, err)
	assert.Equal(t, first.Packages, second.Packages)
}

func TestResolve_LogsConflicts(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "package.json", `{"dependencies": {"debug": "^4.3.4"}}`)
	writeFile(t, dir, "package-lock.json", `{"lockfileVersion": 3, "packages": {
		"": {},
		"node_modules/debug": {"version": "4.3.4"},
		"node_modules/express/node_modules/debug": {"version": "2.6.9"}
	}}`)

	var logs bytes.Buffer
	s := New(testConfig(manifest), newFakeEnricher(), logging.New(&logs, log.InfoLevel), nil)
	res, err := s.Resolve()
	require.NoError(t, err)

	require.Len(t, res.Packages, 1)
	assert.Equal(t, "2.6.9", res.Packages[0].Version, "last path wins")
	assert.Equal(t, models.Direct, res.Packages[0].Classification)
	assert.Contains(t, logs.String(), "keeping last")
}

func TestOrchestrator_Pacing(t *testing.T) {
	const delay = 30 * time.Millisecond

	pkgs := Classify([]models.InstalledPackage{
		{Name: "a", Version: "1.0.0"},
		{Name: "b", Version: "1.0.0"},
		{Name: "c", Version: "1.0.0"},
		{Name: "d", Version: "1.0.0"},
	}, models.NewDeclared())

	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			enricher := newFakeEnricher()
			o := NewOrchestrator(enricher, delay, concurrency, logging.Discard(), nil)

			start := time.Now()
			records, err := o.Run(context.Background(), pkgs)
			require.NoError(t, err)
			require.Len(t, records, len(pkgs))

			assert.Less(t, enricher.starts[0].Sub(start), delay, "first package starts immediately")
			for i := 1; i < len(enricher.starts); i++ {
				gap := enricher.starts[i].Sub(enricher.starts[i-1])
				assert.GreaterOrEqual(t, gap, delay-5*time.Millisecond, "gap before package %d", i)
			}
		})
	}
}

func TestOrchestrator_BoundedConcurrency(t *testing.T) {
	var installed []models.InstalledPackage
	for i := range 12 {
		installed = append(installed, models.InstalledPackage{Name: fmt.Sprintf("pkg-%02d", i), Version: "1.0.0"})
	}
	pkgs := Classify(installed, models.NewDeclared())

	for _, concurrency := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			enricher := newFakeEnricher()
			enricher.hold = 5 * time.Millisecond

			records, err := NewOrchestrator(enricher, 0, concurrency, logging.Discard(), nil).
				Run(context.Background(), pkgs)
			require.NoError(t, err)

			assert.LessOrEqual(t, enricher.maxInFlight.Load(), int32(max(concurrency, 1)))
			for i, r := range records {
				assert.Equal(t, installed[i].Name, r.Package, "records keep input order")
			}
		})
	}
}

func TestOrchestrator_Annotates(t *testing.T) {
	enricher := &annotatingEnricher{fakeEnricher: newFakeEnricher()}
	enricher.advisories["minimist"] = []models.Advisory{{ID: "GHSA-1", Title: "one"}}

	var logs bytes.Buffer
	pkgs := Classify([]models.InstalledPackage{
		{Name: "minimist", Version: "0.0.8"},
		{Name: "clean", Version: "1.0.0"},
	}, models.NewDeclared())

	records, err := NewOrchestrator(enricher, 0, 1, logging.New(&logs, log.InfoLevel), nil).
		Run(context.Background(), pkgs)
	require.NoError(t, err)

	assert.Equal(t, int32(1), enricher.calls.Load(), "packages without advisories are not annotated")
	assert.True(t, records[0].Vulnerabilities[0].KnownExploited, "partial annotation is kept")
	assert.Contains(t, logs.String(), "Advisory annotation incomplete")
}

func TestOrchestrator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pkgs := Classify([]models.InstalledPackage{{Name: "a", Version: "1.0.0"}}, models.NewDeclared())
	records, err := NewOrchestrator(newFakeEnricher(), time.Second, 1, logging.Discard(), nil).Run(ctx, pkgs)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, records)
}

func TestOrchestrator_Empty(t *testing.T) {
	records, err := NewOrchestrator(newFakeEnricher(), time.Second, 1, logging.Discard(), nil).
		Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}
