package innertube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ytget/ytdlp/v2/internal/botguard"
	"github.com/ytget/ytdlp/v2/types"
	"github.com/ytget/ytdlp/v2/youtube/innertube/profiles"
)

// mockYouTubeTransport intercepts YouTube requests and returns predefined responses.
type mockYouTubeTransport struct {
	responseStatus int
	responseBody   string
}

func (t *mockYouTubeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp := &http.Response{
		StatusCode: t.responseStatus,
		Header:     make(http.Header),
		Body:       http.NoBody,
	}
	if t.responseBody != "" {
		resp.Body = io.NopCloser(strings.NewReader(t.responseBody))
	}
	return resp, nil
}

type stubSolver struct{ token string }

func (s stubSolver) Attest(ctx context.Context, in botguard.Input) (botguard.Output, error) {
	return botguard.Output{Token: s.token, ExpiresAt: time.Now().Add(time.Minute)}, nil
}

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		httpClient *http.Client
	}{
		{name: "nil client gets a default transport", httpClient: nil},
		{name: "custom client is tuned in place", httpClient: &http.Client{Transport: &http.Transport{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(tt.httpClient)
			if client.HTTPClient == nil {
				t.Fatal("expected HTTPClient to be set")
			}
			if client.clientName != clientNameWEB {
				t.Errorf("expected default clientName %q, got %q", clientNameWEB, client.clientName)
			}
		})
	}
}

func TestWithBotguardDebug(t *testing.T) {
	client := &Client{}
	if client.WithBotguardDebug(true).bg.debug != true {
		t.Error("expected debug true")
	}
	if client.WithBotguardDebug(false).bg.debug != false {
		t.Error("expected debug false")
	}
}

func TestWithBotguardTTL(t *testing.T) {
	client := &Client{}
	ttl := 5 * time.Minute
	if got := client.WithBotguardTTL(ttl).bg.ttl; got != ttl {
		t.Errorf("expected TTL %v, got %v", ttl, got)
	}
}

func TestGetPlaylistItems_NoAPIKey(t *testing.T) {
	client := New(&http.Client{})
	if _, err := client.GetPlaylistItems("PL1234567890", 0); err == nil {
		t.Error("expected error without a reachable API key source")
	}
}

func TestClientCodeFromName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"WEB", "1"},
		{"MWEB", "2"},
		{"ANDROID", "3"},
		{"ANDROID_SDKLESS", "3"},
		{"IOS", "5"},
		{"TVHTML5", "7"},
		{"WEB_EMBEDDED_PLAYER", "56"},
		{"WEB_CREATOR", "62"},
		{"WEB_REMIX", "67"},
		{"TVHTML5_SIMPLY", "75"},
		{"TVHTML5_SIMPLY_EMBEDDED_PLAYER", "85"},
		{"UNKNOWN", ""},
		{"", ""},
		{"web", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := clientCodeFromName(tt.input); got != tt.expected {
				t.Errorf("clientCodeFromName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCollectPlaylistVideoRenderers(t *testing.T) {
	root := map[string]any{
		"contents": []any{
			map[string]any{
				"playlistVideoRenderer": map[string]any{
					"videoId": "abc123",
					"title":   map[string]any{"runs": []any{map[string]any{"text": "Title One"}}},
					"index":   map[string]any{"simpleText": "1"},
				},
			},
		},
	}
	var items []types.PlaylistItem
	collectPlaylistVideoRenderers(root, &items, 10)
	if len(items) != 1 || items[0].VideoID != "abc123" || items[0].Title != "Title One" || items[0].Index != 1 {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestFindFirstContinuationToken(t *testing.T) {
	root := map[string]any{
		"continuationCommand": map[string]any{"token": "tok1"},
	}
	if got := findFirstContinuationToken(root); got != "tok1" {
		t.Errorf("got %q, want tok1", got)
	}

	nested := map[string]any{
		"a": []any{
			map[string]any{"nextContinuationData": map[string]any{"continuation": "tok2"}},
		},
	}
	if got := findFirstContinuationToken(nested); got != "tok2" {
		t.Errorf("got %q, want tok2", got)
	}

	if got := findFirstContinuationToken(map[string]any{}); got != "" {
		t.Errorf("expected empty token, got %q", got)
	}
}

func TestBotguardRetryOn403(t *testing.T) {
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call++
		if call == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"OK"}}`))
	}))
	defer srv.Close()

	c := &http.Client{Timeout: 5 * time.Second}
	it := New(c)
	it.WithBotguard(stubSolver{token: "t"}, botguard.Auto, botguard.NewMemoryCache())
	it.clientVer = "2.0"
	it.apiKey = "k"

	oldPlayerURL := playerURL
	playerURL = srv.URL
	defer func() { playerURL = oldPlayerURL }()

	if _, err := it.GetPlayerResponse("vid"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if call < 2 {
		t.Fatalf("expected retry after 403, got calls=%d", call)
	}
}

func TestFetchAll_MergesEveryOKResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"OK"},"videoDetails":{"title":"hi"}}`))
	}))
	defer srv.Close()

	oldPlayerURL := playerURL
	playerURL = srv.URL
	defer func() { playerURL = oldPlayerURL }()

	c := New(&http.Client{Timeout: 5 * time.Second})
	c.apiKey = "k"
	c.clientVer = "2.0"

	resps, attempts, err := c.FetchAll(context.Background(), "vid", profiles.All, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v (attempts=%v)", err, attempts)
	}
	if len(resps) != len(profiles.All) {
		t.Fatalf("expected one response per profile (%d), got %d", len(profiles.All), len(resps))
	}
	for _, resp := range resps {
		if resp.VideoDetails.Title != "hi" {
			t.Errorf("unexpected title: %q", resp.VideoDetails.Title)
		}
		if resp.ClientUsed == "" {
			t.Error("expected ClientUsed to be set")
		}
	}
}

func TestFetchAll_PartialFailureStillYieldsResponses(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1)%2 == 0 {
			_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"ERROR","reason":"nope"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"OK"},"videoDetails":{"title":"hi"}}`))
	}))
	defer srv.Close()

	oldPlayerURL := playerURL
	playerURL = srv.URL
	defer func() { playerURL = oldPlayerURL }()

	c := New(&http.Client{Timeout: 5 * time.Second})
	c.apiKey = "k"
	c.clientVer = "2.0"

	resps, attempts, err := c.FetchAll(context.Background(), "vid", profiles.All, "", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v (attempts=%v)", err, attempts)
	}
	if len(resps) == 0 {
		t.Fatal("expected at least one surviving response")
	}
	if len(resps)+len(attempts) != len(profiles.All) {
		t.Errorf("expected responses+attempts to account for every profile: %d+%d != %d", len(resps), len(attempts), len(profiles.All))
	}
}

func TestFetchAll_AllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"playabilityStatus":{"status":"ERROR","reason":"nope"}}`))
	}))
	defer srv.Close()

	oldPlayerURL := playerURL
	playerURL = srv.URL
	defer func() { playerURL = oldPlayerURL }()

	c := New(&http.Client{Timeout: 5 * time.Second})
	c.apiKey = "k"
	c.clientVer = "2.0"

	_, attempts, err := c.FetchAll(context.Background(), "vid", profiles.All, "", "", "")
	if err == nil {
		t.Fatal("expected an error when every profile is discarded")
	}
	if len(attempts) != len(profiles.All) {
		t.Errorf("expected %d attempts, got %d", len(profiles.All), len(attempts))
	}
}

func TestBotguardTTLApplied(t *testing.T) {
	c := &Client{HTTPClient: &http.Client{Timeout: 2 * time.Second}}
	c.clientVer = "2.0"
	cache := botguard.NewMemoryCache()
	solver := stubSolver{token: "tok"}
	c.WithBotguard(solver, botguard.Force, cache).WithBotguardTTL(1 * time.Minute)

	req, _ := http.NewRequest(http.MethodPost, "http://example/", nil)
	req.Header.Set("User-Agent", userAgentValue)

	if err := c.maybeApplyBotguard(req); err != nil {
		t.Fatalf("maybeApplyBotguard error: %v", err)
	}

	key := botguard.KeyFromInput(botguard.Input{
		UserAgent:     userAgentValue,
		PageURL:       "https://www.youtube.com/",
		ClientName:    clientNameWEB,
		ClientVersion: c.clientVer,
		VisitorID:     "",
	})
	out, ok := cache.Get(key)
	if !ok {
		t.Fatalf("expected cache hit after attestation")
	}
	if out.Token == "" {
		t.Fatalf("expected non-empty token")
	}
	if out.ExpiresAt.IsZero() || time.Until(out.ExpiresAt) <= 0 {
		t.Fatalf("expected ExpiresAt in the future")
	}
}

func TestVisitorDataForProfile(t *testing.T) {
	tests := []struct {
		name        string
		profileName string
		wantHeader  string
		wantContext string
	}{
		{"tv gets header only", "TVHTML5", "tv-value", ""},
		{"web gets context only", "WEB", "", "web-value"},
		{"web safari gets context only", "WEB_SAFARI", "", "web-value"},
		{"android gets neither", "ANDROID_SDKLESS", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, context := visitorDataForProfile(profiles.ClientProfile{Name: tt.profileName}, "web-value", "tv-value")
			if header != tt.wantHeader || context != tt.wantContext {
				t.Errorf("visitorDataForProfile(%s) = (%q, %q), want (%q, %q)", tt.profileName, header, context, tt.wantHeader, tt.wantContext)
			}
		})
	}
}

func TestExtractVisitorData(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		hasError bool
	}{
		{"top-level VISITOR_DATA", `ytcfg.set({"VISITOR_DATA":"abc%3D%3D"})`, false},
		{"nested client.visitorData", `ytcfg.set({"INNERTUBE_CONTEXT":{"client":{"visitorData":"xyz"}}})`, false},
		{"no ytcfg.set", `{"VISITOR_DATA":"abc"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractVisitorData([]byte(tt.name + "\n" + tt.body))
			if tt.hasError && err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestTVVisitorID(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("\nytcfg.set({\"VISITOR_DATA\":\"tv-visitor-value\"})"))
	}))
	defer srv.Close()

	oldTVURL := tvLandingURL
	tvLandingURL = srv.URL
	defer func() { tvLandingURL = oldTVURL }()

	c := New(&http.Client{Timeout: 5 * time.Second})
	got, err := c.TVVisitorID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "tv-visitor-value" {
		t.Errorf("got %q, want tv-visitor-value", got)
	}
	if gotUA != cobaltUserAgentValue {
		t.Errorf("expected Cobalt user-agent, got %q", gotUA)
	}
}

func TestRefreshVisitorID(t *testing.T) {
	tests := []struct {
		name           string
		responseBody   string
		responseStatus int
		hasError       bool
	}{
		{
			name:           "valid response with VISITOR_DATA",
			responseBody:   `ytcfg.set({"VISITOR_DATA":"CgtISF9rMVNrRENlVSi988zHBg%3D%3D"})`,
			responseStatus: 200,
			hasError:       false,
		},
		{
			name:           "valid response with nested client.visitorData",
			responseBody:   `ytcfg.set({"INNERTUBE_CONTEXT":{"client":{"visitorData":"CgtISF9rMVNrRENlVQ%3D%3D"}}})`,
			responseStatus: 200,
			hasError:       false,
		},
		{
			name:           "response without visitor id",
			responseBody:   `ytcfg.set({"INNERTUBE_CONTEXT":{"client":{}}})`,
			responseStatus: 200,
			hasError:       true,
		},
		{
			name:           "invalid JSON response",
			responseBody:   `ytcfg.set(invalid json)`,
			responseStatus: 200,
			hasError:       true,
		},
		{
			name:           "response without ytcfg.set",
			responseBody:   `{"VISITOR_DATA":"test"}`,
			responseStatus: 200,
			hasError:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{
				Transport: &mockYouTubeTransport{
					responseStatus: tt.responseStatus,
					responseBody:   tt.responseBody,
				},
			}
			innertubeClient := New(client)
			err := innertubeClient.refreshVisitorID()
			if tt.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWithClient(t *testing.T) {
	tests := []struct {
		name          string
		clientName    string
		clientVersion string
		expectedName  string
	}{
		{name: "sets both", clientName: "ANDROID", clientVersion: "1.0", expectedName: "ANDROID"},
		{name: "blank name keeps default", clientName: "", clientVersion: "1.0", expectedName: clientNameWEB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := New(nil)
			result := client.WithClient(tt.clientName, tt.clientVersion)
			if result.clientName != tt.expectedName {
				t.Errorf("expected name %q, got %q", tt.expectedName, result.clientName)
			}
		})
	}
}

func TestDoWithBotguardRetry(t *testing.T) {
	tests := []struct {
		name           string
		mode           botguard.Mode
		solver         botguard.Solver
		responseStatus int
		expectRetry    bool
	}{
		{"disabled", botguard.Off, nil, 200, false},
		{"disabled with solver", botguard.Off, &stubSolver{token: "t"}, 200, false},
		{"auto 200", botguard.Auto, &stubSolver{token: "t"}, 200, false},
		{"auto 403", botguard.Auto, &stubSolver{token: "t"}, 403, true},
		{"force 200", botguard.Force, &stubSolver{token: "t"}, 200, false},
		{"force 403", botguard.Force, &stubSolver{token: "t"}, 403, true},
		{"auto 403 nil solver", botguard.Auto, nil, 403, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				callCount++
				w.WriteHeader(tt.responseStatus)
				_, _ = w.Write([]byte(`{"status":"ok"}`))
			}))
			defer srv.Close()

			client := &http.Client{Timeout: 5 * time.Second}
			innertubeClient := New(client)
			innertubeClient.WithBotguard(tt.solver, tt.mode, botguard.NewMemoryCache())

			req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
			req.Header.Set("User-Agent", "test-agent")
			req.Header.Set("x-goog-visitor-id", "test-visitor-id")

			resp, err := innertubeClient.doWithBotguardRetry(req)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if resp == nil {
				t.Fatal("expected response, got nil")
			}

			expectedCalls := 1
			if tt.expectRetry && tt.responseStatus == 403 {
				expectedCalls = 2
			}
			if callCount != expectedCalls {
				t.Errorf("expected %d calls, got %d", expectedCalls, callCount)
			}
		})
	}
}
