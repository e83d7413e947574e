package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ytget/ytdlp/v2"
	"github.com/ytget/ytdlp/v2/pkg/client"
)

func main() {
	var (
		flagFormat      string
		flagExt         string
		flagOutput      string
		flagNoProgress  bool
		flagTimeout     time.Duration
		flagRetries     int
		flagUA          string
		flagProxy       string
		flagRateLimit   string
		flagPlaylist    bool
		flagLimit       int
		flagConcurrency int
		flagListFormats bool
		flagDumpJSON    bool
		flagGetURL      bool
		flagSimulate    bool
	)

	flag.StringVar(&flagFormat, "format", "", "Format selector (e.g., 'itag=22', 'best', 'height<=480')")
	flag.StringVar(&flagFormat, "f", "", "Alias for -format")
	flag.StringVar(&flagExt, "ext", "", "Desired extension (e.g., 'mp4', 'webm')")
	flag.StringVar(&flagOutput, "output", "", "Output path (file or directory). Empty derives from title + MIME")
	flag.BoolVar(&flagNoProgress, "no-progress", false, "Disable progress output")
	flag.DurationVar(&flagTimeout, "http-timeout", 30*time.Second, "HTTP timeout (e.g., 30s, 1m)")
	flag.IntVar(&flagRetries, "retries", 3, "HTTP retries for transient errors")
	flag.StringVar(&flagUA, "ua", "", "Override User-Agent header")
	flag.StringVar(&flagProxy, "proxy", "", "Proxy URL (http/https/socks)")
	flag.StringVar(&flagRateLimit, "rate-limit", "", "Download rate limit (e.g., 2MiB/s, 500KiB/s)")
	flag.BoolVar(&flagPlaylist, "playlist", false, "Treat input as playlist URL or ID")
	flag.IntVar(&flagLimit, "limit", 0, "Max items to process for playlist (0 means all)")
	flag.IntVar(&flagConcurrency, "concurrency", 1, "Parallelism for playlist downloads")
	flag.BoolVar(&flagListFormats, "list-formats", false, "List available formats and exit")
	flag.BoolVar(&flagListFormats, "F", false, "Alias for -list-formats")
	flag.BoolVar(&flagDumpJSON, "dump-json", false, "Print extracted video metadata as JSON and exit")
	flag.BoolVar(&flagDumpJSON, "j", false, "Alias for -dump-json")
	flag.BoolVar(&flagGetURL, "get-url", false, "Print the resolved playable URL and exit")
	flag.BoolVar(&flagGetURL, "g", false, "Alias for -get-url")
	flag.BoolVar(&flagSimulate, "simulate", false, "Run extraction without downloading")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <video_or_playlist_url>\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "\nFlags:")
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}

	input := strings.TrimSpace(args[0])

	// Build client config
	cfg := client.Config{Timeout: flagTimeout, Retries: flagRetries, UserAgent: flagUA, ProxyURL: flagProxy}
	c := client.NewWith(cfg)

	if strings.HasPrefix(strings.ToLower(input), "ytsearch") {
		d := ytdlp.New().WithHTTPClient(c.HTTPClient)
		results, err := d.Search(context.Background(), input, 0, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		for _, r := range results {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", r.ID, r.Channel, r.Title)
		}
		return
	}

	if flagPlaylist {
		playlistID, err := parsePlaylistID(input)
		if err != nil || playlistID == "" {
			fmt.Fprintf(os.Stderr, "Invalid playlist input: %v\n", err)
			os.Exit(2)
		}

		// Prepare output dir
		outDir := flagOutput
		if outDir == "" {
			outDir = "."
		}
		if !isDir(outDir) {
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to create output dir: %v\n", err)
				os.Exit(1)
			}
		}

		d := ytdlp.New().WithHTTPClient(c.HTTPClient)
		items, err := d.GetPlaylistItemsAll(context.Background(), playlistID, flagLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch playlist: %v\n", err)
			os.Exit(1)
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No items in playlist")
			return
		}
		if flagConcurrency < 1 {
			flagConcurrency = 1
		}

		jobs := make(chan int, len(items))
		var wg sync.WaitGroup
		wg.Add(flagConcurrency)
		for w := 0; w < flagConcurrency; w++ {
			go func() {
				defer wg.Done()
				localD := ytdlp.New().WithHTTPClient(c.HTTPClient)
				if flagFormat != "" || flagExt != "" {
					localD = localD.WithFormat(flagFormat, flagExt)
				}
				if bps := parseRate(flagRateLimit); bps > 0 {
					localD = localD.WithRateLimit(bps)
				}
				if !flagNoProgress && flagConcurrency == 1 {
					localD = localD.WithProgress(func(p ytdlp.Progress) {
						if p.TotalSize > 0 {
							_, _ = fmt.Fprintf(os.Stdout, "Downloaded %.1f%%\r", p.Percent)
						}
					})
				}
				for idx := range jobs {
					item := items[idx]
					videoURL := "https://www.youtube.com/watch?v=" + item.VideoID
					_, _ = fmt.Fprintf(os.Stdout, "Downloading [%d/%d] %s...\n", idx+1, len(items), item.Title)
					localOut := flagOutput
					if localOut != "" && isDir(localOut) {
						localOut = filepath.Join(localOut, "") // directory; library will derive filename
					}
					if localOut != "" {
						localD = localD.WithOutputPath(localOut)
					}
					if _, err := localD.Download(context.Background(), videoURL); err != nil {
						fmt.Fprintf(os.Stderr, "Error downloading %s: %v\n", item.Title, err)
					} else {
						_, _ = fmt.Fprintf(os.Stdout, "Done: %s\n", item.Title)
					}
				}
			}()
		}
		for i := range items {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		return
	}

	d := ytdlp.New().WithHTTPClient(c.HTTPClient)
	if flagFormat != "" || flagExt != "" {
		d = d.WithFormat(flagFormat, flagExt)
	}
	if flagOutput != "" {
		d = d.WithOutputPath(flagOutput)
	}
	if !flagNoProgress {
		d = d.WithProgress(func(p ytdlp.Progress) {
			if p.TotalSize > 0 {
				_, _ = fmt.Fprintf(os.Stdout, "Downloaded %.1f%%\r", p.Percent)
			}
		})
	}
	if bps := parseRate(flagRateLimit); bps > 0 {
		d = d.WithRateLimit(bps)
	}

	if flagListFormats || flagDumpJSON || flagGetURL || flagSimulate {
		runSimulate(d, input, flagListFormats, flagDumpJSON, flagGetURL)
		return
	}

	info, err := d.Download(context.Background(), input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	_, _ = fmt.Fprintf(os.Stdout, "\nSaved: %s\n", info.Title)
}

// runSimulate handles -F/-j/-g/--simulate: it drives extraction (and, for
// -g, format selection) without ever touching the downloader.
func runSimulate(d *ytdlp.Downloader, input string, listFormats, dumpJSON, getURL bool) {
	ctx := context.Background()

	if getURL {
		finalURL, _, err := d.ResolveURL(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stdout, finalURL)
		return
	}

	info, err := d.ExtractInfo(ctx, input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if dumpJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if listFormats {
		fmt.Fprintf(os.Stdout, "%s (%s)\n", info.Title, info.ID)
		fmt.Fprintf(os.Stdout, "%-6s %-12s %-8s %-8s %-10s %-8s\n", "itag", "ext", "vcodec", "acodec", "res", "abr/vbr")
		for _, f := range info.Formats {
			res := ""
			if f.Width > 0 && f.Height > 0 {
				res = fmt.Sprintf("%dx%d", f.Width, f.Height)
			}
			fmt.Fprintf(os.Stdout, "%-6d %-12s %-8s %-8s %-10s %.0f/%.0f\n",
				f.Itag, f.Ext, f.VCodec, f.ACodec, res, f.ABR, f.VBR)
		}
		return
	}

	// --simulate alone: report what would be downloaded without fetching it.
	fmt.Fprintf(os.Stdout, "Would extract: %s (%s), %d format(s) available\n", info.Title, info.ID, len(info.Formats))
}

// parseRate parses strings like "2MiB/s", "500KiB/s" into bytes per second.
func parseRate(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0
	}
	// Very small parser: accept numbers with optional KiB/MiB/GiB suffix and optional /S
	mul := int64(1)
	s = strings.TrimSuffix(s, "/S")
	s = strings.TrimSpace(s)
	sfx := ""
	for _, suf := range []string{"KIB", "MIB", "GIB", "KB", "MB", "GB"} {
		if strings.HasSuffix(s, suf) {
			sfx = suf
			s = strings.TrimSuffix(s, suf)
			break
		}
	}
	s = strings.TrimSpace(s)
	var val float64
	_, err := fmt.Sscanf(s, "%f", &val)
	if err != nil || val <= 0 {
		return 0
	}
	switch sfx {
	case "KIB":
		mul = 1024
	case "MIB":
		mul = 1024 * 1024
	case "GIB":
		mul = 1024 * 1024 * 1024
	case "KB":
		mul = 1000
	case "MB":
		mul = 1000 * 1000
	case "GB":
		mul = 1000 * 1000 * 1000
	}
	return int64(val * float64(mul))
}

func parsePlaylistID(input string) (string, error) {
	// Accept raw playlist IDs as-is
	if input != "" && (strings.HasPrefix(input, "PL") || strings.HasPrefix(input, "UU") || strings.HasPrefix(input, "OLAK5uy_")) {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	if id := u.Query().Get("list"); id != "" {
		return id, nil
	}
	return "", fmt.Errorf("playlist id not found")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
