package playerscript

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractScriptURL_Strategies(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "fast assets scan",
			html: `blah "assets":"js":"\/s\/player\/abc123\/base.js" blah`,
			want: "/s/player/abc123/base.js",
		},
		{
			name: "fast player path scan",
			html: `ytcfg.set({"PLAYER_JS_URL": "/s/player/deadbeef/player_ias.vflset/en_US/base.js"});`,
			want: "/s/player/deadbeef/player_ias.vflset/en_US/base.js",
		},
		{
			name: "script tag regex",
			html: `<script src="/s/player/cafef00d/player_ias.vflset/en_US/base.js"></script>`,
			want: "/s/player/cafef00d/player_ias.vflset/en_US/base.js",
		},
		{
			name: "assets json regex",
			html: `{"assets":{"js":"/s/player/f00dface/base.js","css":"x"}}`,
			want: "/s/player/f00dface/base.js",
		},
		{
			name: "bare path regex",
			html: `no markers here, just /s/player/1234567890/base.js floating free`,
			want: "/s/player/1234567890/base.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractScriptURL([]byte(tt.html))
			if err != nil {
				t.Fatalf("extractScriptURL() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("extractScriptURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractScriptURL_NoMatch(t *testing.T) {
	if _, err := extractScriptURL([]byte("nothing useful here")); err == nil {
		t.Error("expected error when no strategy matches")
	}
}

func TestExtractPlayerID(t *testing.T) {
	got, err := extractPlayerID("https://www.youtube.com/s/player/abc123/base.js")
	if err != nil {
		t.Fatalf("extractPlayerID() error = %v", err)
	}
	if got != "abc123" {
		t.Errorf("extractPlayerID() = %q, want %q", got, "abc123")
	}
}

func TestExtractPlayerID_NoMatch(t *testing.T) {
	if _, err := extractPlayerID("https://example.com/nope.js"); err == nil {
		t.Error("expected error when path has no /player/ segment")
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, host, want string
	}{
		{"/s/player/x/base.js", "www.youtube.com", "https://www.youtube.com/s/player/x/base.js"},
		{"//www.youtube.com/s/player/x/base.js", "www.youtube.com", "https://www.youtube.com/s/player/x/base.js"},
		{"https://www.youtube.com/s/player/x/base.js", "www.youtube.com", "https://www.youtube.com/s/player/x/base.js"},
	}
	for _, tt := range tests {
		if got := normalizeURL(tt.in, tt.host); got != tt.want {
			t.Errorf("normalizeURL(%q, %q) = %q, want %q", tt.in, tt.host, got, tt.want)
		}
	}
}

func TestFetcher_Fetch_MemoryCacheHit(t *testing.T) {
	var scriptRequests int
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script src="/s/player/ghijkl/player_ias.vflset/en_US/base.js"></script>`))
	})
	mux.HandleFunc("/s/player/ghijkl/player_ias.vflset/en_US/base.js", func(w http.ResponseWriter, r *http.Request) {
		scriptRequests++
		_, _ = w.Write([]byte("var x = 1;"))
	})
	// TLS server: normalizeURL resolves the host-relative script path to https.
	server := httptest.NewTLSServer(mux)
	defer server.Close()

	tmpDir := t.TempDir()
	f := New(server.Client(), tmpDir)

	host := strings.TrimPrefix(server.URL, "https://")
	fetchOnce := func() *Script {
		html, err := f.getPage(context.Background(), server.URL+"/watch")
		if err != nil {
			t.Fatalf("getPage: %v", err)
		}
		scriptURL, err := extractScriptURL(html)
		if err != nil {
			t.Fatalf("extractScriptURL: %v", err)
		}
		scriptURL = normalizeURL(scriptURL, host)
		playerID, err := extractPlayerID(scriptURL)
		if err != nil {
			t.Fatalf("extractPlayerID: %v", err)
		}
		if src, ok := f.fromMemory(playerID); ok {
			return &Script{PlayerID: playerID, Source: src}
		}
		src, err := f.getPage(context.Background(), scriptURL)
		if err != nil {
			t.Fatalf("getPage script: %v", err)
		}
		f.storeMemory(playerID, src)
		f.storeDisk(playerID, src)
		return &Script{PlayerID: playerID, Source: src}
	}

	first := fetchOnce()
	second := fetchOnce()

	if first.PlayerID != "ghijkl" || second.PlayerID != "ghijkl" {
		t.Fatalf("unexpected player ids: %q, %q", first.PlayerID, second.PlayerID)
	}
	if scriptRequests != 1 {
		t.Errorf("expected exactly 1 script fetch (second should hit memory cache), got %d", scriptRequests)
	}
}

func TestFetcher_Fetch_RespectsCancelledContext(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<script src="/s/player/abc/base.js"></script>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	f := New(server.Client(), t.TempDir())
	host := strings.TrimPrefix(server.URL, "http://")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, "vid", host); err == nil {
		t.Error("expected Fetch to fail against an already-cancelled context")
	}
}

func TestFetcher_DiskCacheRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	f := New(nil, tmpDir)

	f.storeDisk("zz999", []byte("console.log('hi')"))

	src, ok := f.fromDisk("zz999")
	if !ok {
		t.Fatal("expected disk cache hit")
	}
	if string(src) != "console.log('hi')" {
		t.Errorf("fromDisk() = %q, want %q", src, "console.log('hi')")
	}
}
