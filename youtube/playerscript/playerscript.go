// Package playerscript fetches the YouTube player script and extracts its
// stable player_id, generalizing youtube/cipher's old single-regex
// getPlayerJS/FetchPlayerJS pair into the ordered five-strategy URL
// extraction and the two-tier (memory + disk) cache of spec.md §4.2.
package playerscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ytget/ytdlp/v2/internal/logger"
)

const (
	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultCacheTTL = 6 * time.Hour
)

// DefaultCacheDir is where the disk tier of the cache lives unless
// overridden, matching spec.md §6 (`<tmp>/ytdlpp_cache`).
var DefaultCacheDir = filepath.Join(os.TempDir(), "ytdlpp_cache")

var (
	assetsJSRe    = regexp.MustCompile(`"assets":\s*\{[^}]*"js":"([^"]+)"`)
	scriptTagRe   = regexp.MustCompile(`<script[^>]+src="([^"]*player_ias[^"]*base\.js)"`)
	playerPathRe  = regexp.MustCompile(`/s/player/[A-Za-z0-9._/\-]+/base\.js`)
	playerIDPathRe = regexp.MustCompile(`/player/([A-Za-z0-9._\-]+)/`)
)

// Script is one fetched player script generation: its stable player_id and
// raw JS source, ready to hand to a cipher.Decipherer's Load.
type Script struct {
	PlayerID string
	Source   []byte
}

type cacheEntry struct {
	source []byte
	expAt  time.Time
}

// Fetcher produces player scripts for a video id, caching by player_id in
// memory (per Fetcher) and on disk so repeated extractions for different
// videos sharing a player generation skip the network entirely.
type Fetcher struct {
	HTTPClient *http.Client
	CacheDir   string
	CacheTTL   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	log *logger.ComponentLogger
}

// New creates a Fetcher. A nil httpClient gets a default one; an empty
// cacheDir falls back to DefaultCacheDir.
func New(httpClient *http.Client, cacheDir string) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cacheDir == "" {
		cacheDir = DefaultCacheDir
	}
	return &Fetcher{
		HTTPClient: httpClient,
		CacheDir:   cacheDir,
		CacheTTL:   defaultCacheTTL,
		cache:      make(map[string]cacheEntry),
		log:        logger.WithComponent(logger.ComponentPlayerScript),
	}
}

// Fetch returns the player script backing videoID's watch page. The watch
// page is always fetched to extract the script URL and its player_id; the
// script itself is fetched only when neither cache tier has that player_id
// yet. watchHost defaults to www.youtube.com. Both
// HTTP round trips run against ctx, so a cancelled ctx aborts Fetch the same
// way spec.md §5 requires for any pending request tied to a cancelled
// extraction.
func (f *Fetcher) Fetch(ctx context.Context, videoID, watchHost string) (*Script, error) {
	if watchHost == "" {
		watchHost = "www.youtube.com"
	}
	watchURL := fmt.Sprintf("https://%s/watch?v=%s", watchHost, videoID)

	body, err := f.getPage(ctx, watchURL)
	if err != nil {
		return nil, fmt.Errorf("playerscript: fetch watch page: %w", err)
	}

	scriptURL, err := extractScriptURL(body)
	if err != nil {
		return nil, err
	}
	scriptURL = normalizeURL(scriptURL, watchHost)

	playerID, err := extractPlayerID(scriptURL)
	if err != nil {
		return nil, err
	}

	if src, ok := f.fromMemory(playerID); ok {
		return &Script{PlayerID: playerID, Source: src}, nil
	}
	if src, ok := f.fromDisk(playerID); ok {
		f.storeMemory(playerID, src)
		return &Script{PlayerID: playerID, Source: src}, nil
	}

	src, err := f.getPage(ctx, scriptURL)
	if err != nil {
		return nil, fmt.Errorf("playerscript: fetch script: %w", err)
	}

	f.storeMemory(playerID, src)
	f.storeDisk(playerID, src)
	return &Script{PlayerID: playerID, Source: src}, nil
}

func (f *Fetcher) getPage(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgentValue)

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("playerscript: unexpected status %d fetching %s", resp.StatusCode, u)
	}
	return io.ReadAll(resp.Body)
}

// extractScriptURL runs the ordered five-strategy search of spec.md §4.2,
// stopping on the first hit.
func extractScriptURL(body []byte) (string, error) {
	html := string(body)

	// Strategy 1: fast string search for the "assets":"js":"..." structure.
	if u, ok := fastAssetsScan(html); ok {
		return u, nil
	}

	// Strategy 2: fast string search for "/s/player/", walking outward to
	// the surrounding quote/equal/space and the base.js suffix.
	if u, ok := fastPlayerPathScan(html); ok {
		return u, nil
	}

	// Strategy 3: <script src="...player_ias...base.js"> regex.
	if m := scriptTagRe.FindStringSubmatch(html); len(m) == 2 {
		return m[1], nil
	}

	// Strategy 4: "assets":{"js":"..."} regex form.
	if m := assetsJSRe.FindStringSubmatch(html); len(m) == 2 {
		return unescapeSlashes(m[1]), nil
	}

	// Strategy 5: /s/player/[...]/base.js regex.
	if m := playerPathRe.FindString(html); m != "" {
		return m, nil
	}

	return "", errors.New("playerscript: could not locate player script url in watch page")
}

func fastAssetsScan(html string) (string, bool) {
	const marker = `"assets":"js":"`
	idx := strings.Index(html, marker)
	if idx < 0 {
		return "", false
	}
	start := idx + len(marker)
	end := strings.Index(html[start:], `"`)
	if end < 0 {
		return "", false
	}
	return unescapeSlashes(html[start : start+end]), true
}

func fastPlayerPathScan(html string) (string, bool) {
	const marker = `"/s/player/`
	idx := strings.Index(html, marker)
	if idx < 0 {
		return "", false
	}

	start := idx + 1 // skip the opening quote the marker includes
	for start > 0 {
		c := html[start-1]
		if c == '"' || c == '=' || c == ' ' {
			break
		}
		start--
	}

	const suffix = `base.js`
	end := strings.Index(html[idx:], suffix)
	if end < 0 {
		return "", false
	}
	end = idx + end + len(suffix)

	return unescapeSlashes(html[start:end]), true
}

func unescapeSlashes(s string) string {
	return strings.ReplaceAll(s, `\/`, `/`)
}

func normalizeURL(scriptURL, host string) string {
	if strings.HasPrefix(scriptURL, "http://") || strings.HasPrefix(scriptURL, "https://") {
		return scriptURL
	}
	if strings.HasPrefix(scriptURL, "//") {
		return "https:" + scriptURL
	}
	if !strings.HasPrefix(scriptURL, "/") {
		scriptURL = "/" + scriptURL
	}
	return "https://" + host + scriptURL
}

// extractPlayerID returns the path component immediately following
// "/player/" in the script URL.
func extractPlayerID(scriptURL string) (string, error) {
	m := playerIDPathRe.FindStringSubmatch(scriptURL)
	if len(m) != 2 || m[1] == "" {
		return "", fmt.Errorf("playerscript: could not extract player_id from %q", scriptURL)
	}
	return m[1], nil
}

func (f *Fetcher) fromMemory(playerID string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.cache[playerID]
	if !ok || time.Now().After(entry.expAt) {
		return nil, false
	}
	return entry.source, true
}

func (f *Fetcher) storeMemory(playerID string, src []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[playerID] = cacheEntry{source: src, expAt: time.Now().Add(f.ttl())}
}

func (f *Fetcher) ttl() time.Duration {
	if f.CacheTTL <= 0 {
		return defaultCacheTTL
	}
	return f.CacheTTL
}

func (f *Fetcher) diskPath(playerID string) string {
	return filepath.Join(f.CacheDir, playerID+".js")
}

func (f *Fetcher) fromDisk(playerID string) ([]byte, bool) {
	data, err := os.ReadFile(f.diskPath(playerID))
	if err != nil {
		return nil, false
	}
	return data, true
}

func (f *Fetcher) storeDisk(playerID string, src []byte) {
	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		f.log.Debug(fmt.Sprintf("playerscript: could not create cache dir %s: %v", f.CacheDir, err))
		return
	}
	if err := os.WriteFile(f.diskPath(playerID), src, 0o644); err != nil {
		f.log.Debug(fmt.Sprintf("playerscript: could not write cache file for %s: %v", playerID, err))
	}
}
