package mitre

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/attackguard/attackctl/internal/platform/resilience"
)

// snapshot is the immutable state swapped atomically on each refresh.
type snapshot struct {
	index     *TechniqueIndex
	version   string
	hash      string
	fetchedAt time.Time
	stale     bool
}

// CacheMeta is the on-disk meta.json sidecar for the cached bundle.
type CacheMeta struct {
	Version   string    `json:"version"`
	FetchedAt time.Time `json:"fetchedAt"`
	SHA256    string    `json:"sha256"`
}

// Fetcher pulls and caches the MITRE STIX bundle with change detection,
// falling back to a backup URL and, failing that, the last good snapshot.
// Grounded on the hot-reload-scanner pattern: an atomically-swapped pointer
// plus a sha256 content hash to skip rebuilding the index when nothing
// changed.
type Fetcher struct {
	primaryURL string
	backupURL  string
	cacheDir   string
	client     *http.Client

	// backupBreaker guards the backup URL: once it trips open, a failing
	// primary short-circuits straight to the last good snapshot instead of
	// hammering the backup on every refresh tick.
	backupBreaker *resilience.CircuitBreaker

	snap atomic.Value // stores *snapshot
}

// NewFetcher constructs a Fetcher and performs an initial load (remote
// fetch falling back to disk cache, or disk cache alone if offline).
func NewFetcher(ctx context.Context, primaryURL, backupURL, cacheDir string) (*Fetcher, error) {
	f := &Fetcher{
		primaryURL:    primaryURL,
		backupURL:     backupURL,
		cacheDir:      cacheDir,
		client:        &http.Client{Timeout: 30 * time.Second},
		backupBreaker: resilience.NewCircuitBreakerAdaptive(time.Minute, 6, 3, 0.5, 30*time.Second, 1),
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog cache dir: %w", err)
	}
	if err := f.Refresh(ctx); err != nil {
		// No successful fetch at startup: try the disk cache alone.
		if snap, loadErr := f.loadFromDisk(); loadErr == nil {
			snap.stale = true
			f.snap.Store(snap)
			return f, nil
		}
		return nil, err
	}
	return f, nil
}

// Index returns the current TechniqueIndex, its version, and whether it is
// stale (served from cache after a failed refresh).
func (f *Fetcher) Index() (*TechniqueIndex, string, bool) {
	s, _ := f.snap.Load().(*snapshot)
	if s == nil {
		return nil, "", false
	}
	return s.index, s.version, s.stale
}

// Refresh fetches the bundle from the primary URL, falling back to the
// backup URL, and rebuilds the index only if the content hash changed.
// Refresh takes no lock itself: the Refresher skips a scheduled tick while
// the previous one is still running, and NewFetcher's own call happens
// before any schedule starts. Readers always proceed against the last good
// snapshot.
func (f *Fetcher) Refresh(ctx context.Context) error {
	raw, err := f.fetchWithFallback(ctx)
	if err != nil {
		if prev, _ := f.snap.Load().(*snapshot); prev != nil {
			stale := *prev
			stale.stale = true
			f.snap.Store(&stale)
			return nil
		}
		return err
	}

	hash := contentHash(raw)
	if prev, _ := f.snap.Load().(*snapshot); prev != nil && prev.hash == hash {
		return nil
	}

	index, version, err := ParseBundle(raw)
	if err != nil {
		return err
	}
	if err := f.writeCache(raw, version, hash); err != nil {
		return err
	}
	f.snap.Store(&snapshot{index: index, version: version, hash: hash, fetchedAt: time.Now(), stale: false})
	return nil
}

func (f *Fetcher) fetchWithFallback(ctx context.Context) ([]byte, error) {
	raw, err := f.fetchURL(ctx, f.primaryURL)
	if err == nil {
		return raw, nil
	}
	if f.backupURL == "" {
		return nil, err
	}
	if !f.backupBreaker.Allow() {
		return nil, fmt.Errorf("backup catalog url circuit open: %w", err)
	}
	raw, backupErr := f.fetchURL(ctx, f.backupURL)
	f.backupBreaker.RecordResult(backupErr == nil)
	if backupErr != nil {
		return nil, backupErr
	}
	return raw, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("empty catalog URL")
	}
	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream server error: status %d", resp.StatusCode)
		}
		if resp.StatusCode == 429 {
			return fmt.Errorf("rate limit: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) writeCache(raw []byte, version, hash string) error {
	if err := os.WriteFile(filepath.Join(f.cacheDir, "bundle.json"), raw, 0o644); err != nil {
		return err
	}
	meta := CacheMeta{Version: version, FetchedAt: time.Now(), SHA256: hash}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.cacheDir, "meta.json"), metaBytes, 0o644)
}

func (f *Fetcher) loadFromDisk() (*snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(f.cacheDir, "bundle.json"))
	if err != nil {
		return nil, err
	}
	index, version, err := ParseBundle(raw)
	if err != nil {
		return nil, err
	}
	return &snapshot{index: index, version: version, hash: contentHash(raw), fetchedAt: time.Now()}, nil
}

func contentHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
