// Package innertube drives YouTube's private player/browse RPC surface.
// Client.FetchAll dials every configured client profile concurrently and
// returns every playable response, matching the Parallel Fan-Out component
// of the extraction pipeline.
package innertube

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/ytget/ytdlp/v2/internal/botguard"
	"github.com/ytget/ytdlp/v2/internal/logger"
	"github.com/ytget/ytdlp/v2/types"
	"github.com/ytget/ytdlp/v2/youtube/innertube/profiles"
)

var (
	playerURL    = "https://www.youtube.com/youtubei/v1/player"
	browseURL    = "https://www.youtube.com/youtubei/v1/browse"
	tvLandingURL = "https://www.youtube.com/tv"
)

const (
	ytBase                = "https://www.youtube.com"
	userAgentValue        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	cobaltUserAgentValue  = "Mozilla/5.0 (ChromiumStylePlatform) Cobalt/25.lts.30.1034943-gold (unlike Gecko), Unknown_TV_Unknown_0/Unknown (Unknown, Unknown)"
	headerContentTypeJSON = "application/json"
	clientNameWEB         = "WEB"
	clientNameTV          = "TVHTML5"
	defaultClientVersion  = "2.20250312.04.00"
	browseIDPrefix        = "VL"
	defaultPlaylistLimit  = 100
	continuationLimitMax  = 1 << 20
	visitorIdMaxAge       = 10 * time.Hour
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

// PlayerResponse represents a response from the InnerTube /player endpoint.
type PlayerResponse struct {
	StreamingData struct {
		Formats         []any `json:"formats"`
		AdaptiveFormats []any `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		Title         string   `json:"title"`
		Author        string   `json:"author"`
		ChannelID     string   `json:"channelId"`
		LengthSeconds string   `json:"lengthSeconds"`
		ViewCount     string   `json:"viewCount"`
		ShortDesc     string   `json:"shortDescription"`
		IsLive        bool     `json:"isLive"`
		IsLiveContent bool     `json:"isLiveContent"`
		IsPostLiveDVR bool     `json:"isPostLiveDvr"`
		IsOwnerViewer bool     `json:"isOwnerViewing"`
		IsCrawlable   bool     `json:"isCrawlable"`
		Keywords      []string `json:"keywords"`
		Thumbnail     struct {
			Thumbnails []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Microformat struct {
		PlayerMicroformatRenderer struct {
			UploadDate      string `json:"uploadDate"`
			IsFamilySafe    bool   `json:"isFamilySafe"`
			IsUnlisted      bool   `json:"isUnlisted"`
			Category        string `json:"category"`
			ExternalChannel string `json:"externalChannelId"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`

	// ClientUsed names the profile whose response this is, set by FetchAll.
	ClientUsed string `json:"-"`
}

// AttemptError records one profile's failed or discarded fan-out attempt.
type AttemptError struct {
	Client string
	Err    error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.Client, e.Err)
}

// ErrAllClientsFailed is returned by FetchAll when every dialed profile
// either errored or returned a non-OK playabilityStatus.
type ErrAllClientsFailed struct {
	Attempts []AttemptError
}

func (e *ErrAllClientsFailed) Error() string {
	if len(e.Attempts) == 0 {
		return "innertube: all clients failed"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return "innertube: all clients failed: " + strings.Join(parts, "; ")
}

// Client for interacting with the YouTube InnerTube API.
type Client struct {
	HTTPClient *http.Client
	apiKey     string
	clientVer  string
	clientName string
	visitorId  struct {
		value   string
		updated time.Time
	}
	log *logger.ComponentLogger

	bg struct {
		solver botguard.Solver
		mode   botguard.Mode
		cache  botguard.Cache
		ttl    time.Duration
		debug  bool
	}
}

// New creates a new InnerTube client with a pooled transport (HTTP/2
// attempted) tuned for the burst of concurrent requests FetchAll issues.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 10 * time.Second,
				DisableCompression:    false,
				ReadBufferSize:        16 * 1024,
				WriteBufferSize:       16 * 1024,
			},
			Timeout: 30 * time.Second,
		}
	} else if transport, ok := httpClient.Transport.(*http.Transport); ok {
		transport.ForceAttemptHTTP2 = true
		transport.DisableCompression = false
		transport.MaxIdleConnsPerHost = 10
		transport.TLSHandshakeTimeout = 10 * time.Second
		transport.ExpectContinueTimeout = 1 * time.Second
		transport.ResponseHeaderTimeout = 10 * time.Second
		transport.ReadBufferSize = 16 * 1024
		transport.WriteBufferSize = 16 * 1024
	}

	return &Client{
		HTTPClient: httpClient,
		clientName: clientNameWEB,
		log:        logger.WithComponent(logger.ComponentInnerTube),
	}
}

// WithClient overrides the InnerTube client name/version used by the
// legacy single-client operations (GetPlayerResponse, playlist calls).
// FetchAll ignores this override and always dials every profile.
func (c *Client) WithClient(name, version string) *Client {
	if strings.TrimSpace(name) != "" {
		c.clientName = name
	}
	if strings.TrimSpace(version) != "" {
		c.clientVer = version
	}
	return c
}

// WithBotguard configures an optional Botguard solver and mode.
func (c *Client) WithBotguard(solver botguard.Solver, mode botguard.Mode, cache botguard.Cache) *Client {
	c.bg.solver = solver
	c.bg.mode = mode
	c.bg.cache = cache
	return c
}

// WithBotguardDebug enables Botguard debug logging.
func (c *Client) WithBotguardDebug(debug bool) *Client {
	c.bg.debug = debug
	return c
}

// WithBotguardTTL sets a default TTL applied when a solver result doesn't
// specify its own expiry.
func (c *Client) WithBotguardTTL(ttl time.Duration) *Client {
	c.bg.ttl = ttl
	return c
}

func (c *Client) ensureKey(videoOrPlaylistID string, isPlaylist bool) {
	if c.apiKey != "" && c.clientVer != "" {
		return
	}

	var sources []string
	if isPlaylist {
		sources = append(sources, ytBase+"/playlist?list="+videoOrPlaylistID)
	} else {
		sources = append(sources, ytBase+"/watch?v="+videoOrPlaylistID)
	}
	sources = append(sources, ytBase, ytBase+"/feed/trending", ytBase+"/feed/explore")

	for _, source := range sources {
		if c.apiKey != "" && c.clientVer != "" {
			break
		}

		req, err := http.NewRequest(http.MethodGet, source, nil)
		if err != nil {
			continue
		}
		req.Header.Set("User-Agent", userAgentValue)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.5")
		req.Header.Set("Accept-Encoding", "identity")

		resp, err := c.HTTPClient.Do(req)
		if err != nil || resp == nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			continue
		}

		if c.apiKey == "" {
			if m := apiKeyRe.FindSubmatch(body); len(m) == 2 {
				c.apiKey = string(m[1])
			}
		}
		if c.clientVer == "" {
			if m := clientVerRe.FindSubmatch(body); len(m) == 2 {
				c.clientVer = string(m[1])
			}
		}
	}

	if c.clientVer == "" {
		c.clientVer = defaultClientVersion
	}
}

// FetchAll fans the player request out to every profile in profs (or
// profiles.All when profs is empty) and collects every response whose
// playabilityStatus is OK, in arrival order. Non-OK and errored responses
// are recorded as AttemptError but never block a usable result: FetchAll
// only fails when every profile comes back discarded or erroring.
//
// webVisitorData and tvVisitorData are the two distinct visitor-data values
// spec.md §4.1 names: webVisitorData (scraped from the watch page's ytcfg)
// goes into the WEB/WEB_SAFARI clients' request context, and tvVisitorData
// (scraped from the "tv" landing page with a Cobalt user-agent) goes only
// into the TV client's X-Goog-Visitor-Id header. Neither is applied to
// ANDROID_SDKLESS, which the profile table doesn't associate with either
// scrape.
func (c *Client) FetchAll(ctx context.Context, videoID string, profs []profiles.ClientProfile, webVisitorData, tvVisitorData, poToken string) ([]*PlayerResponse, []AttemptError, error) {
	c.ensureKey(videoID, false)
	if c.apiKey == "" {
		return nil, nil, errors.New("innertube: api key not found")
	}
	if len(profs) == 0 {
		profs = profiles.All
	}

	type fetchResult struct {
		resp *PlayerResponse
		err  error
		name string
	}
	results := make(chan fetchResult, len(profs))
	var wg sync.WaitGroup

	for _, p := range profs {
		wg.Add(1)
		go func(p profiles.ClientProfile) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			headerVisitorData, contextVisitorData := visitorDataForProfile(p, webVisitorData, tvVisitorData)
			resp, err := c.fetchPlayerResponseForProfile(ctx, p, videoID, headerVisitorData, contextVisitorData, poToken)
			select {
			case results <- fetchResult{resp: resp, err: err, name: p.Name}:
			case <-ctx.Done():
			}
		}(p)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	// Responses are appended in the order they arrive on the results
	// channel, so responses[0] is the first-arrival response the Format
	// Assembler uses as its scalar-metadata source (spec's "arrival order
	// determines metadata source" rule).
	var attempts []AttemptError
	var responses []*PlayerResponse
	for res := range results {
		if res.err != nil {
			attempts = append(attempts, AttemptError{Client: res.name, Err: res.err})
			continue
		}
		if res.resp.PlayabilityStatus.Status != "OK" {
			reason := res.resp.PlayabilityStatus.Reason
			if reason == "" {
				reason = res.resp.PlayabilityStatus.Status
			}
			c.log.Debug(fmt.Sprintf("profile %s discarded: playability %s", res.name, reason))
			attempts = append(attempts, AttemptError{Client: res.name, Err: fmt.Errorf("playability status %q: %s", res.resp.PlayabilityStatus.Status, reason)})
			continue
		}
		res.resp.ClientUsed = res.name
		responses = append(responses, res.resp)
	}

	if len(responses) == 0 {
		return nil, attempts, &ErrAllClientsFailed{Attempts: attempts}
	}
	return responses, attempts, nil
}

// visitorDataForProfile routes the two scraped visitor-data values to the
// wire location spec.md §4.1 step 3 / §4.5 mandates: the TV client only
// gets tvVisitorData, on its X-Goog-Visitor-Id header; WEB and WEB_SAFARI
// only get webVisitorData, in the request context. ANDROID_SDKLESS gets
// neither.
func visitorDataForProfile(p profiles.ClientProfile, webVisitorData, tvVisitorData string) (headerVisitorData, contextVisitorData string) {
	switch p.Name {
	case clientNameTV:
		return tvVisitorData, ""
	case clientNameWEB, "WEB_SAFARI", "MWEB":
		return "", webVisitorData
	default:
		return "", ""
	}
}

func (c *Client) fetchPlayerResponseForProfile(ctx context.Context, p profiles.ClientProfile, videoID, headerVisitorData, contextVisitorData, poToken string) (*PlayerResponse, error) {
	requestBody, err := json.Marshal(p.RequestBody(videoID, contextVisitorData, poToken))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, playerURL+"?key="+c.apiKey, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", headerContentTypeJSON)
	for k, v := range p.Headers(headerVisitorData) {
		req.Header.Set(k, v)
	}

	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}

	var playerResponse PlayerResponse
	if err := json.Unmarshal(body, &playerResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &playerResponse, nil
}

// GetPlayerResponse fetches video data for the provided video ID using the
// single client set via WithClient (default WEB). Kept for callers that
// want one specific client rather than the full fan-out.
func (c *Client) GetPlayerResponse(videoID string) (*PlayerResponse, error) {
	c.ensureKey(videoID, false)
	if c.apiKey == "" {
		return nil, errors.New("innertube: api key not found")
	}

	name := c.clientName
	ver := c.clientVer
	if name != clientNameWEB && ver == defaultClientVersion {
		ver = "2.0"
	}
	p := profiles.ClientProfile{Name: name, Version: ver, UserAgent: userAgentValue}
	if code := clientCodeFromName(name); code != "" {
		if n, err := strconv.Atoi(code); err == nil {
			p.ContextNameID = n
		}
	}
	visitorId, _ := c.getVisitorID()
	return c.fetchPlayerResponseForProfile(context.Background(), p, videoID, visitorId, visitorId, "")
}

// clientCodeFromName returns the X-YouTube-Client-Name numeric code for
// legacy single-client lookups (GetPlayerResponse/playlist operations,
// which aren't covered by the profiles table).
func clientCodeFromName(name string) string {
	switch strings.ToUpper(name) {
	case "WEB":
		return "1"
	case "MWEB":
		return "2"
	case "ANDROID", "ANDROID_SDKLESS":
		return "3"
	case "IOS":
		return "5"
	case "TVHTML5":
		return "7"
	case "WEB_EMBEDDED_PLAYER":
		return "56"
	case "WEB_CREATOR":
		return "62"
	case "WEB_REMIX":
		return "67"
	case "TVHTML5_SIMPLY":
		return "75"
	case "TVHTML5_SIMPLY_EMBEDDED_PLAYER":
		return "85"
	default:
		return ""
	}
}

func decodeBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "bzip2":
		reader = bzip2.NewReader(resp.Body)
	case "deflate":
		reader = resp.Body
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// GetPlaylistItems fetches initial playlist items (without continuations).
func (c *Client) GetPlaylistItems(playlistID string, limit int) ([]types.PlaylistItem, error) {
	c.ensureKey(playlistID, true)
	if c.apiKey == "" {
		return nil, errors.New("innertube: api key not found")
	}
	if limit <= 0 {
		limit = defaultPlaylistLimit
	}

	p := profiles.ClientProfile{Name: c.clientName, Version: c.clientVer, UserAgent: userAgentValue}
	reqBody := map[string]any{
		"context":  map[string]any{"client": p.ContextClient()},
		"browseId": browseIDPrefix + playlistID,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, browseURL+"?key="+c.apiKey, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	for k, v := range p.Headers("") {
		req.Header.Set(k, v)
	}
	if visitorId, err := c.getVisitorID(); err == nil && visitorId != "" {
		req.Header.Set("x-goog-visitor-id", visitorId)
	}

	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var root any
	if err := json.Unmarshal(respBody, &root); err != nil {
		return nil, err
	}
	items := make([]types.PlaylistItem, 0, 50)
	collectPlaylistVideoRenderers(root, &items, limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// GetPlaylistItemsAll loads playlist items with continuations up to limit.
func (c *Client) GetPlaylistItemsAll(playlistID string, limit int) ([]types.PlaylistItem, error) {
	items, err := c.GetPlaylistItems(playlistID, limit)
	if err != nil {
		return nil, err
	}
	if len(items) >= limit {
		return items, nil
	}

	p := profiles.ClientProfile{Name: c.clientName, Version: c.clientVer, UserAgent: userAgentValue}
	reqBody := map[string]any{
		"context":  map[string]any{"client": p.ContextClient()},
		"browseId": browseIDPrefix + playlistID,
	}
	bodyBytes, _ := json.Marshal(reqBody)
	req, _ := http.NewRequest(http.MethodPost, browseURL+"?key="+c.apiKey, bytes.NewReader(bodyBytes))
	for k, v := range p.Headers("") {
		req.Header.Set(k, v)
	}
	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return items, nil
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, _ := io.ReadAll(resp.Body)
	var root any
	_ = json.Unmarshal(respBody, &root)

	token := findFirstContinuationToken(root)
	for token != "" && len(items) < limit {
		more, next, err := c.getPlaylistContinuation(token)
		if err != nil {
			break
		}
		items = append(items, more...)
		if len(items) >= limit {
			break
		}
		token = next
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (c *Client) getPlaylistContinuation(continuation string) ([]types.PlaylistItem, string, error) {
	if c.apiKey == "" {
		return nil, "", errors.New("innertube: api key not found")
	}
	p := profiles.ClientProfile{Name: c.clientName, Version: c.clientVer, UserAgent: userAgentValue}
	reqBody := map[string]any{
		"context":      map[string]any{"client": p.ContextClient()},
		"continuation": continuation,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequest(http.MethodPost, browseURL+"?key="+c.apiKey, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, "", err
	}
	for k, v := range p.Headers("") {
		req.Header.Set(k, v)
	}
	if visitorId, err := c.getVisitorID(); err == nil && visitorId != "" {
		req.Header.Set("x-goog-visitor-id", visitorId)
	}

	resp, err := c.doWithBotguardRetry(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	var root any
	if err := json.Unmarshal(respBody, &root); err != nil {
		return nil, "", err
	}
	items := make([]types.PlaylistItem, 0, 50)
	collectPlaylistVideoRenderers(root, &items, continuationLimitMax)
	next := findFirstContinuationToken(root)
	return items, next, nil
}

func collectPlaylistVideoRenderers(node any, out *[]types.PlaylistItem, limit int) {
	if len(*out) >= limit {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		if r, ok := v["playlistVideoRenderer"].(map[string]any); ok {
			var it types.PlaylistItem
			if s, ok := r["videoId"].(string); ok {
				it.VideoID = s
			}
			if idx, ok := r["index"].(map[string]any); ok {
				if simple, ok := idx["simpleText"].(string); ok {
					if n, err := strconv.Atoi(simple); err == nil {
						it.Index = n
					}
				}
			}
			if title, ok := r["title"].(map[string]any); ok {
				if runs, ok := title["runs"].([]any); ok && len(runs) > 0 {
					if first, ok := runs[0].(map[string]any); ok {
						if txt, ok := first["text"].(string); ok {
							it.Title = txt
						}
					}
				}
			}
			*out = append(*out, it)
			return
		}
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	case []any:
		for _, val := range v {
			collectPlaylistVideoRenderers(val, out, limit)
			if len(*out) >= limit {
				return
			}
		}
	}
}

func findFirstContinuationToken(node any) string {
	switch v := node.(type) {
	case map[string]any:
		if cc, ok := v["continuationCommand"].(map[string]any); ok {
			if tok, ok := cc["token"].(string); ok && tok != "" {
				return tok
			}
		}
		if nd, ok := v["nextContinuationData"].(map[string]any); ok {
			if tok, ok := nd["continuation"].(string); ok && tok != "" {
				return tok
			}
		}
		if tok, ok := v["continuation"].(string); ok && tok != "" {
			return tok
		}
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	case []any:
		for _, val := range v {
			if t := findFirstContinuationToken(val); t != "" {
				return t
			}
		}
	}
	return ""
}

// VisitorID returns the current visitor ID, refreshing it from YouTube's
// homepage if stale. Used by the legacy single-client operations
// (GetPlayerResponse, playlist calls); the fan-out's two-source visitor
// data comes from TVVisitorID and the Session Coordinator's watch-page
// scrape instead.
func (c *Client) VisitorID() (string, error) {
	return c.getVisitorID()
}

// APIKey scrapes and returns the INNERTUBE_API_KEY, refreshing it from
// YouTube's landing pages if not already cached. Exposed for callers that
// need a key for an endpoint with no natural video/playlist ID to anchor
// the scrape to, like /search.
func (c *Client) APIKey() (string, error) {
	c.ensureKey("", false)
	if c.apiKey == "" {
		return "", errors.New("innertube: api key not found")
	}
	return c.apiKey, nil
}

// getVisitorID returns the current visitor ID, refreshing it if stale.
func (c *Client) getVisitorID() (string, error) {
	var err error
	if c.visitorId.value == "" || time.Since(c.visitorId.updated) > visitorIdMaxAge {
		err = c.refreshVisitorID()
	}
	return c.visitorId.value, err
}

// refreshVisitorID fetches a new visitor ID from YouTube's main page,
// trying the VISITOR_DATA top-level key before falling back to
// INNERTUBE_CONTEXT.client.visitorData, since the page ships either shape
// depending on experiment bucket.
func (c *Client) refreshVisitorID() error {
	req, err := http.NewRequest(http.MethodGet, ytBase, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	id, err := ExtractVisitorData(data)
	if err != nil {
		return err
	}
	c.visitorId.value = id
	c.visitorId.updated = time.Now()
	return nil
}

// TVVisitorID performs Branch B's TV-config fetch (spec.md §4.1 step 2): an
// HTTP GET of YouTube's "tv" landing page using a Cobalt user-agent,
// extracting VISITOR_DATA from the embedded ytcfg.set({...}) the same way
// refreshVisitorID does for the desktop page. Best-effort and not cached:
// callers that need this value on every extraction should call it per
// Session rather than relying on the homepage-scrape cache getVisitorID
// maintains for the legacy single-client operations.
func (c *Client) TVVisitorID(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tvLandingURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", cobaltUserAgentValue)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return ExtractVisitorData(data)
}

// ExtractVisitorData locates the first ytcfg.set({...}) call in an HTML page
// body and reads VISITOR_DATA (falling back to INNERTUBE_CONTEXT.client.
// visitorData) from the JSON object that follows it. Exposed for the
// Session Coordinator's watch-page scrape (spec.md §4.1 step 3), which
// applies the same technique to a different page than the one
// refreshVisitorID/TVVisitorID fetch.
func ExtractVisitorData(data []byte) (string, error) {
	const sep = "ytcfg.set({"

	_, rest, found := strings.Cut(string(data), sep)
	if !found {
		return "", errors.New("visitor ID not found in ytcfg")
	}

	var value struct {
		VisitorData      string `json:"VISITOR_DATA"`
		InnertubeContext struct {
			Client struct {
				VisitorData string `json:"visitorData"`
			} `json:"client"`
		} `json:"INNERTUBE_CONTEXT"`
	}
	if err := json.NewDecoder(strings.NewReader("{" + rest)).Decode(&value); err != nil {
		return "", err
	}

	id := value.VisitorData
	if id == "" {
		id = value.InnertubeContext.Client.VisitorData
	}
	if id == "" {
		return "", errors.New("visitor ID not found in ytcfg")
	}
	return strings.ReplaceAll(id, "%3D", "="), nil
}

// doWithBotguardRetry executes the request and, if configured in Auto/Force
// mode, attempts a single Botguard attestation on 403 to retry with the
// obtained token applied.
func (c *Client) doWithBotguardRetry(req *http.Request) (*http.Response, error) {
	if c.bg.solver == nil || c.bg.mode == botguard.Off {
		return c.HTTPClient.Do(req)
	}

	if c.bg.mode == botguard.Force {
		c.maybeApplyBotguard(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil || resp == nil || resp.StatusCode != http.StatusForbidden {
		return resp, err
	}
	_ = resp.Body.Close()

	if c.bg.mode == botguard.Auto || c.bg.mode == botguard.Force {
		if err := c.maybeApplyBotguard(req); err == nil {
			// The first attempt consumed the body; rewind it for the retry.
			if req.GetBody != nil {
				if body, bErr := req.GetBody(); bErr == nil {
					req.Body = body
				}
			}
			return c.HTTPClient.Do(req)
		}
	}
	return resp, err
}

func (c *Client) maybeApplyBotguard(req *http.Request) error {
	if c.bg.solver == nil {
		return nil
	}
	visitorId := req.Header.Get("x-goog-visitor-id")
	name := c.clientName
	if strings.TrimSpace(name) == "" {
		name = clientNameWEB
	}
	in := botguard.Input{
		UserAgent:     req.Header.Get("User-Agent"),
		PageURL:       "https://www.youtube.com/",
		ClientName:    name,
		ClientVersion: c.clientVer,
		VisitorID:     visitorId,
	}
	key := botguard.KeyFromInput(in)
	if c.bg.cache != nil {
		if out, ok := c.bg.cache.Get(key); ok && (out.ExpiresAt.IsZero() || time.Until(out.ExpiresAt) > 0) {
			if out.Token != "" {
				req.Header.Set("x-goog-ext-123-botguard", out.Token)
			}
			return nil
		}
	}
	out, err := c.bg.solver.Attest(req.Context(), in)
	if err != nil {
		if c.bg.debug {
			c.log.Debug(fmt.Sprintf("botguard attestation error: %v", err))
		}
		return err
	}
	if out.ExpiresAt.IsZero() && c.bg.ttl > 0 {
		out.ExpiresAt = time.Now().Add(c.bg.ttl)
	}
	if out.Token != "" {
		req.Header.Set("x-goog-ext-123-botguard", out.Token)
	}
	if c.bg.cache != nil {
		c.bg.cache.Set(key, out)
	}
	return nil
}
