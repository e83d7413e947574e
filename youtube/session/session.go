// Package session drives one extraction from a video URL to a fully
// assembled types.VideoInfo: video-id parsing, the two-branch parallel
// launch of the player-script/decipher load and the visitor-data/PO-token
// scrape, the Parallel Fan-Out, and the Format Assembler.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ytget/ytdlp/v2/errs"
	"github.com/ytget/ytdlp/v2/internal/botguard"
	"github.com/ytget/ytdlp/v2/internal/logger"
	"github.com/ytget/ytdlp/v2/types"
	"github.com/ytget/ytdlp/v2/youtube/cipher"
	"github.com/ytget/ytdlp/v2/youtube/formats"
	"github.com/ytget/ytdlp/v2/youtube/innertube"
	"github.com/ytget/ytdlp/v2/youtube/innertube/profiles"
	"github.com/ytget/ytdlp/v2/youtube/playerscript"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`/shorts/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`/embed/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`/v/([A-Za-z0-9_-]{11})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{11})`),
}

var poTokenRe = regexp.MustCompile(`"poToken":"([^"]+)"`)

// Extractor owns the long-lived, shareable resources a Session borrows:
// the HTTP client, the Innertube fan-out client, and the player-script
// cache. Sessions are cheap and created per-extraction; the Extractor is
// created once per process (or per Downloader).
type Extractor struct {
	HTTPClient *http.Client

	itClient *innertube.Client
	psFetch  *playerscript.Fetcher

	bgSolver botguard.Solver
	bgMode   botguard.Mode
	bgCache  botguard.Cache

	log *logger.ComponentLogger
}

// NewExtractor creates an Extractor. A nil httpClient gets the innertube
// package's own tuned default transport.
func NewExtractor(httpClient *http.Client) *Extractor {
	itClient := innertube.New(httpClient)
	return &Extractor{
		HTTPClient: itClient.HTTPClient,
		itClient:   itClient,
		psFetch:    playerscript.New(itClient.HTTPClient, ""),
		log:        logger.WithComponent(logger.ComponentSession),
	}
}

// WithBotguard configures the PO-token solver used as the secondary
// strategy (spec.md §9 open question 1) when a client profile's
// PoTokenPolicy.Required is true and the landing-page scrape found
// nothing. It also re-wires the same solver into the Innertube client's
// own 403-triggered retry path.
func (e *Extractor) WithBotguard(solver botguard.Solver, mode botguard.Mode, cache botguard.Cache) *Extractor {
	e.bgSolver = solver
	e.bgMode = mode
	e.bgCache = cache
	e.itClient.WithBotguard(solver, mode, cache)
	return e
}

// NewSession starts a single-use Session bound to this Extractor's shared
// resources.
func (e *Extractor) NewSession() *Session {
	return &Session{extractor: e, log: e.log}
}

// Session drives exactly one extraction. Calling Extract more than once
// returns errs.ErrSessionReused.
type Session struct {
	extractor *Extractor

	used      atomic.Bool
	cancelled atomic.Bool
	cancel    context.CancelFunc

	log *logger.ComponentLogger
}

// Cancel marks the session cancelled and cancels its in-flight context.
// Safe to call concurrently with, or before, Extract.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	if c := s.cancel; c != nil {
		c()
	}
}

// Extract runs the full pipeline: video-id parsing, the two-branch
// parallel launch (§4.1 step 2), the Parallel Fan-Out (§4.6), and the
// Format Assembler (§4.7), returning the assembled VideoInfo.
func (s *Session) Extract(ctx context.Context, rawURL string) (*types.VideoInfo, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, errs.ErrSessionReused
	}

	videoID, err := extractVideoID(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidURL, "could not extract video id", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	var (
		decipherer     *cipher.Decipherer
		webVisitorData string
		tvVisitorData  string
		poToken        string
		wg             sync.WaitGroup
	)

	wg.Add(2)

	// Branch A: PlayerScript fetch + Decipher load. Non-fatal on failure —
	// formats needing decipher degrade to unresolved URLs later.
	go func() {
		defer wg.Done()
		script, err := s.extractor.psFetch.Fetch(ctx, videoID, "")
		if err != nil {
			s.log.Debug(fmt.Sprintf("playerscript fetch failed, proceeding without decipher: %v", err))
			return
		}
		d := cipher.NewDecipherer()
		d.Load(script.PlayerID, script.Source)
		decipherer = d
	}()

	// Branch B: TV-config fetch (tv_visitor_data) plus the watch-page scrape
	// for web visitor-data and the PO token. Both are non-fatal on failure.
	go func() {
		defer wg.Done()
		if vid, err := s.extractor.itClient.TVVisitorID(ctx); err == nil {
			tvVisitorData = vid
		} else {
			s.log.Debug(fmt.Sprintf("tv visitor id fetch failed: %v", err))
		}
		if vid, tok, err := s.scrapeWatchPage(ctx, videoID); err == nil {
			webVisitorData = vid
			poToken = tok
		} else {
			s.log.Debug(fmt.Sprintf("watch page scrape failed: %v", err))
		}
	}()

	wg.Wait()
	if decipherer != nil {
		defer decipherer.Close()
	}

	if s.cancelled.Load() {
		return nil, errs.ErrCancelled
	}

	if poToken == "" {
		poToken = s.solvePoTokenFallback(ctx, videoID, webVisitorData)
	}

	playerResponses, attempts, err := s.extractor.itClient.FetchAll(ctx, videoID, profiles.All, webVisitorData, tvVisitorData, poToken)
	if err != nil {
		var allFailed *innertube.ErrAllClientsFailed
		if errors.As(err, &allFailed) {
			s.log.Warn(fmt.Sprintf("all %d client profiles failed", len(attempts)))
			return nil, errs.Wrap(errs.KindVideoNotFound, "no client profile returned a playable response", err)
		}
		return nil, errs.Wrap(errs.KindRequestFailed, "fan-out failed", err)
	}

	if s.cancelled.Load() {
		return nil, errs.ErrCancelled
	}

	availableFormats, err := formats.ParseFormats(playerResponses)
	if err != nil {
		return nil, errs.Wrap(errs.KindJSONParseError, "parse formats failed", err)
	}

	if decipherer != nil {
		_ = formats.DecryptSignatures(decipherer, availableFormats)
	}
	availableFormats = formats.Dedupe(availableFormats)
	availableFormats = formats.DropUnresolved(availableFormats)

	return formats.AssembleVideoInfo(videoID, playerResponses, availableFormats), nil
}

// scrapeWatchPage fetches the watch page and extracts both web visitor-data
// (via the same ytcfg.set({...}) technique TVVisitorID applies to the "tv"
// landing page, spec.md §4.1 step 3) and the PO token (a "poToken":"..."
// substring probe, step 3's "poToken substring probe"). Either value may
// come back empty; only a request-level failure is an error.
func (s *Session) scrapeWatchPage(ctx context.Context, videoID string) (visitorData, poToken string, err error) {
	watchURL := "https://www.youtube.com/watch?v=" + videoID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := s.extractor.HTTPClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}

	if vd, vErr := innertube.ExtractVisitorData(body); vErr == nil {
		visitorData = vd
	}
	if m := poTokenRe.FindSubmatch(body); len(m) == 2 {
		poToken = string(m[1])
	}
	return visitorData, poToken, nil
}

// solvePoTokenFallback runs the Botguard solver when the scrape found
// nothing and at least one fan-out profile's PoTokenPolicy marks the
// token required, matching DESIGN.md's "kept both, solver secondary"
// decision for spec.md §9's open PO-token question.
func (s *Session) solvePoTokenFallback(ctx context.Context, videoID, visitorData string) string {
	if s.extractor.bgSolver == nil || s.extractor.bgMode == botguard.Off {
		return ""
	}

	needsToken := false
	for _, p := range profiles.All {
		if p.PoTokenPolicy.Required {
			needsToken = true
			break
		}
	}
	if !needsToken {
		return ""
	}

	in := botguard.Input{
		UserAgent:     "Mozilla/5.0",
		PageURL:       "https://www.youtube.com/watch?v=" + videoID,
		ClientName:    "WEB",
		ClientVersion: "2.20250312.04.00",
		VisitorID:     visitorData,
	}
	if s.extractor.bgCache != nil {
		if out, ok := s.extractor.bgCache.Get(botguard.KeyFromInput(in)); ok {
			return out.Token
		}
	}
	out, err := s.extractor.bgSolver.Attest(ctx, in)
	if err != nil {
		s.log.Debug(fmt.Sprintf("botguard poToken fallback failed: %v", err))
		return ""
	}
	if s.extractor.bgCache != nil {
		s.extractor.bgCache.Set(botguard.KeyFromInput(in), out)
	}
	return out.Token
}

// ExtractVideoID parses rawURL and returns its 11-character video id,
// trying each of the five URL families in spec.md §4.1 step 1's
// precedence order. Exposed for callers that need just the id without
// running a full Session.
func ExtractVideoID(rawURL string) (string, error) {
	return extractVideoID(rawURL)
}

func extractVideoID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if strings.TrimSpace(u.Host) == "" && strings.TrimSpace(u.Path) == "" {
		return "", errors.New("empty url")
	}

	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(rawURL); len(m) == 2 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%q does not match any known video url pattern", rawURL)
}
