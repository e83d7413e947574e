// Package formats assembles the final playable format list: parsing the
// raw Innertube streaming-data entries into the full scalar field set,
// deciphering signatures/n-params concurrently, and deduplicating by itag.
package formats

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ytget/ytdlp/v2/internal/mimeext"
	"github.com/ytget/ytdlp/v2/types"
	"github.com/ytget/ytdlp/v2/youtube/cipher"
	"github.com/ytget/ytdlp/v2/youtube/innertube"
)

var (
	heightRe = regexp.MustCompile(`([0-9]{3,4})p`)
	codecsRe = regexp.MustCompile(`codecs="([^"]*)"`)
)

func getSubtype(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func parseHeight(label string) int {
	m := heightRe.FindStringSubmatch(label)
	if len(m) >= 2 {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return v
		}
	}
	return 0
}

// splitCodecs parses a mimeType's `codecs="..."` parameter into the video
// and audio codec axes, keyed off whether the mime's top-level type is
// audio or video. A progressive format's mime carries both codecs
// comma-separated (video first); an adaptive format carries exactly one.
func splitCodecs(mimeType string) (vcodec, acodec string) {
	vcodec, acodec = types.CodecNone, types.CodecNone

	m := codecsRe.FindStringSubmatch(mimeType)
	if len(m) < 2 {
		return vcodec, acodec
	}
	parts := strings.Split(m[1], ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	isAudioOnly := strings.HasPrefix(strings.ToLower(mimeType), "audio/")
	switch len(parts) {
	case 0:
		return vcodec, acodec
	case 1:
		if isAudioOnly {
			acodec = parts[0]
		} else {
			vcodec = parts[0]
		}
	default:
		vcodec = parts[0]
		acodec = parts[1]
	}
	return vcodec, acodec
}

func parseFloatField(f map[string]any, key string) float64 {
	if v, ok := f[key].(float64); ok {
		return v
	}
	return 0
}

func parseIntField(f map[string]any, key string) int {
	return int(parseFloatField(f, key))
}

// languagePreference weighs an audio track's language per the original
// audio / default / other / descriptive ordering.
func languagePreference(f map[string]any) int {
	track, ok := f["audioTrack"].(map[string]any)
	if !ok {
		return 0
	}
	if isDefault, _ := track["audioIsDefault"].(bool); isDefault {
		return types.LangPrefDefault
	}
	if displayName, ok := track["displayName"].(string); ok {
		lower := strings.ToLower(displayName)
		if strings.Contains(lower, "original") {
			return types.LangPrefOriginal
		}
		if strings.Contains(lower, "descriptive") || strings.Contains(lower, "description") {
			return types.LangPrefDescriptive
		}
	}
	return types.LangPrefOther
}

// ParseFormats parses every InnerTube player response from the fan-out and
// returns the concatenation of their available media formats (progressive
// and adaptive), in response order. Concatenating rather than picking one
// response is what lets one client profile's adaptive-only stream and
// another's progressive stream end up in the same result. Deciphering and
// deduplication happen in later phases (DecryptSignatures, Dedupe).
func ParseFormats(responses []*innertube.PlayerResponse) ([]types.Format, error) {
	var allFormats []any
	for _, data := range responses {
		if data == nil {
			continue
		}
		allFormats = append(allFormats, data.StreamingData.Formats...)
		allFormats = append(allFormats, data.StreamingData.AdaptiveFormats...)
	}

	var out []types.Format
	for _, formatData := range allFormats {
		f, ok := formatData.(map[string]any)
		if !ok {
			continue
		}

		mimeType, _ := f["mimeType"].(string)
		quality, _ := f["qualityLabel"].(string)
		vcodec, acodec := splitCodecs(mimeType)

		format := types.Format{
			Itag:     parseIntField(f, "itag"),
			MimeType: mimeType,
			Ext:      mimeext.ExtFromMime(mimeType),
			VCodec:   vcodec,
			ACodec:   acodec,
			Quality:  quality,

			Width:  parseIntField(f, "width"),
			Height: parseIntField(f, "height"),
			FPS:    parseIntField(f, "fps"),

			AudioSampleRate: atoiOr(asString(f["audioSampleRate"]), 0),
			AudioChannels:   parseIntField(f, "audioChannels"),

			Bitrate: parseIntField(f, "bitrate"),
			TBR:     parseFloatField(f, "bitrate") / 1000,
			ABR:     parseFloatField(f, "averageBitrate") / 1000,

			Language:           audioTrackDisplayName(f),
			LanguagePreference: languagePreference(f),
		}
		if format.Height == 0 {
			format.Height = parseHeight(quality)
		}
		if acodec != types.CodecNone && vcodec == types.CodecNone {
			format.VBR = 0
			format.ABR = format.TBR
		} else if vcodec != types.CodecNone && acodec == types.CodecNone {
			format.VBR = format.TBR
		}

		if v, ok := f["contentLength"].(string); ok {
			if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
				format.ContentLength = parsed
				format.Size = parsed
			}
		}

		if urlVal, ok := f["url"].(string); ok {
			format.URL = urlVal
		} else if sc, ok := f["signatureCipher"].(string); ok {
			format.SignatureCipher = sc
		}

		out = append(out, format)
	}
	return out, nil
}

func audioTrackDisplayName(f map[string]any) string {
	track, ok := f["audioTrack"].(map[string]any)
	if !ok {
		return ""
	}
	return asString(track["displayName"])
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// DecryptSignatures resolves the playable URL for every format carrying a
// signatureCipher, by running the AST-primary/regex-fallback Decipherer
// against each one concurrently through a bounded worker pool. Formats
// that already have a direct URL only get their `n` parameter rewritten.
// Failures degrade to leaving the format's URL unresolved; they are never
// fatal to the batch.
func DecryptSignatures(d *cipher.Decipherer, formats []types.Format) error {
	const workers = 4
	jobs := make(chan int, len(formats))
	var wg sync.WaitGroup

	for i := range formats {
		jobs <- i
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resolveFormatURL(d, &formats[i])
			}
		}()
	}
	wg.Wait()
	return nil
}

func resolveFormatURL(d *cipher.Decipherer, f *types.Format) {
	ctx := context.Background()

	if strings.TrimSpace(f.URL) != "" {
		u, err := url.Parse(f.URL)
		if err != nil {
			return
		}
		q := u.Query()
		rewriteThrottleAndFlags(d, ctx, q)
		u.RawQuery = q.Encode()
		f.URL = u.String()
		return
	}

	if strings.TrimSpace(f.SignatureCipher) == "" {
		return
	}
	parsed, err := url.ParseQuery(f.SignatureCipher)
	if err != nil {
		return
	}
	sig := parsed.Get("s")
	sp := parsed.Get("sp")
	if sp == "" {
		sp = "signature"
	}
	cipherURL := parsed.Get("url")
	if cipherURL == "" || sig == "" {
		return
	}

	u, err := url.Parse(cipherURL)
	if err != nil {
		return
	}
	q := u.Query()
	q.Set(sp, d.DecipherSig(ctx, sig))
	rewriteThrottleAndFlags(d, ctx, q)
	u.RawQuery = q.Encode()
	f.URL = u.String()
}

// rewriteThrottleAndFlags decodes the `n` throttling parameter in place and
// ensures ratebypass/alr are set, matching the query tweaks the teacher's
// ResolveFormatURL applied inline.
func rewriteThrottleAndFlags(d *cipher.Decipherer, ctx context.Context, q url.Values) {
	if n := q.Get("n"); n != "" {
		if out := d.TransformN(ctx, n); out != "" {
			q.Set("n", out)
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	if q.Get("alr") == "" {
		q.Set("alr", "yes")
	}
}

// DropUnresolved removes any format whose URL is still empty after
// DecryptSignatures — e.g. a signatureCipher with no `s` field, or a
// cipher whose `url` sub-field was missing — per the Format Assembler's
// Phase 3 step 6 rule that such formats never reach the caller.
func DropUnresolved(formats []types.Format) []types.Format {
	out := make([]types.Format, 0, len(formats))
	for _, f := range formats {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Dedupe removes duplicate itags, preserving the first arrival of each
// itag as the invariant VideoInfo.Formats enforces.
func Dedupe(formats []types.Format) []types.Format {
	seen := make(map[int]bool, len(formats))
	out := make([]types.Format, 0, len(formats))
	for _, f := range formats {
		if seen[f.Itag] {
			continue
		}
		seen[f.Itag] = true
		out = append(out, f)
	}
	return out
}

// AssembleVideoInfo builds the final types.VideoInfo scalar metadata from
// the first-arrival response in responses, per the Format Assembler's
// Phase 1 rule: metadata always comes from responses[0], while formats
// already merges every response's streaming data. responses must be
// non-empty; callers only reach here once the fan-out has produced at
// least one playable response.
func AssembleVideoInfo(videoID string, responses []*innertube.PlayerResponse, resolvedFormats []types.Format) *types.VideoInfo {
	primary := responses[0]
	vd := primary.VideoDetails
	mf := primary.Microformat.PlayerMicroformatRenderer

	duration := atoiOr(vd.LengthSeconds, 0)
	viewCount, _ := strconv.ParseInt(vd.ViewCount, 10, 64)

	channelID := vd.ChannelID
	if channelID == "" {
		channelID = mf.ExternalChannel
	}
	channelURL := ""
	if channelID != "" {
		channelURL = "https://www.youtube.com/channel/" + channelID
	}

	thumbnails := make([]types.Thumbnail, 0, len(vd.Thumbnail.Thumbnails))
	for _, t := range vd.Thumbnail.Thumbnails {
		thumbnails = append(thumbnails, types.Thumbnail{URL: t.URL, Width: t.Width, Height: t.Height})
	}

	var categories []string
	if mf.Category != "" {
		categories = []string{mf.Category}
	}

	info := &types.VideoInfo{
		ID:             videoID,
		Title:          vd.Title,
		Uploader:       vd.Author,
		Channel:        vd.Author,
		ChannelID:      channelID,
		ChannelURL:     channelURL,
		Duration:       duration,
		DurationString: formatDurationString(duration),
		UploadDate:     normalizeUploadDate(mf.UploadDate),
		ViewCount:      viewCount,
		LiveStatus:     liveStatus(vd.IsLive, vd.IsPostLiveDVR, vd.IsLiveContent),
		Availability:   availability(mf.IsUnlisted),
		AgeLimit:       ageLimit(mf.IsFamilySafe),
		Thumbnails:     thumbnails,
		Tags:           append([]string{}, vd.Keywords...),
		Categories:     categories,
		Formats:        resolvedFormats,
	}
	return info
}

// formatDurationString derives the `H:MM:SS`/`M:SS` display form, zero-
// padding every component except the leading one.
func formatDurationString(seconds int) string {
	if seconds < 0 {
		return ""
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if seconds >= 3600 {
		return strconv.Itoa(h) + ":" + pad2(m) + ":" + pad2(s)
	}
	return strconv.Itoa(m) + ":" + pad2(s)
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// normalizeUploadDate converts microformat's `YYYY-MM-DD` into `YYYYMMDD`,
// leaving anything already in that shape (or empty) untouched.
func normalizeUploadDate(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.ReplaceAll(raw, "-", "")
}

func liveStatus(isLive, isPostLiveDVR, isLiveContent bool) types.LiveStatus {
	switch {
	case isLive:
		return types.LiveStatusIsLive
	case isPostLiveDVR:
		return types.LiveStatusPostLive
	case isLiveContent:
		return types.LiveStatusWasLive
	default:
		return types.LiveStatusNotLive
	}
}

func availability(isUnlisted bool) types.Availability {
	if isUnlisted {
		return types.AvailabilityUnlisted
	}
	return types.AvailabilityPublic
}

func ageLimit(isFamilySafe bool) int {
	if isFamilySafe {
		return 0
	}
	return 18
}

// SelectFormat chooses the best format according to criteria without
// requiring direct URLs. Supported selectors:
//   - ext: file extension ("mp4", "webm")
//   - itag=NN: specific format by itag (e.g., "itag=22" for 720p MP4)
//   - best: highest quality (height, then bitrate)
//   - worst: lowest quality
//   - height<=NNN: height no more than NNN (e.g., "height<=720")
//   - height>=NNN: height no less than NNN (e.g., "height>=480")
//
// If selector is absent or no match found, heuristic is used:
// prefer itag 22 (720p MP4), then itag 18 (360p MP4),
// then progressive mp4 with avc1, else first available.
func SelectFormat(formats []types.Format, quality, ext string) *types.Format {
	all := make([]types.Format, 0, len(formats))
	all = append(all, formats...)

	filtered := make([]types.Format, 0, len(all))
	for i := range all {
		if mimeSubtypeEquals(all[i], ext) {
			filtered = append(filtered, all[i])
		}
	}
	if len(filtered) == 0 {
		filtered = all
	}
	if len(filtered) == 0 {
		return nil
	}

	q := strings.TrimSpace(strings.ToLower(quality))
	if strings.HasPrefix(q, "itag=") {
		val := strings.TrimPrefix(q, "itag=")
		if it, err := strconv.Atoi(val); err == nil {
			for i := range filtered {
				if itagEquals(filtered[i], it) {
					return &filtered[i]
				}
			}
		}
	}

	var minH, maxH int
	if strings.HasPrefix(q, "height<=") {
		if v, err := strconv.Atoi(strings.TrimPrefix(q, "height<=")); err == nil {
			maxH = v
		}
	}
	if strings.HasPrefix(q, "height>=") {
		if v, err := strconv.Atoi(strings.TrimPrefix(q, "height>=")); err == nil {
			minH = v
		}
	}
	if minH > 0 || maxH > 0 {
		tmp := filtered[:0]
		for i := range filtered {
			if withinHeight(filtered[i], minH, maxH) {
				tmp = append(tmp, filtered[i])
			}
		}
		if len(tmp) > 0 {
			filtered = tmp
		}
	}

	if q == "best" || q == "worst" {
		best := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(f, best) {
				best = f
			}
		}
		if q == "best" {
			return &best
		}
		worst := filtered[0]
		for _, f := range filtered[1:] {
			if betterByHeightThenBitrate(worst, f) {
				worst = f
			}
		}
		return &worst
	}

	var itag22, itag18 *types.Format
	for i := range filtered {
		if filtered[i].Itag == 22 {
			iTAG22 := filtered[i]
			itag22 = &iTAG22
		}
		if filtered[i].Itag == 18 {
			iTAG18 := filtered[i]
			itag18 = &iTAG18
		}
	}
	if itag22 != nil {
		return itag22
	}
	if itag18 != nil {
		return itag18
	}

	for i := range filtered {
		if strings.Contains(filtered[i].MimeType, "video/mp4") && strings.Contains(filtered[i].MimeType, "avc1") {
			return &filtered[i]
		}
	}
	for i := range filtered {
		if hasDirectURL(filtered[i]) {
			return &filtered[i]
		}
	}
	return &filtered[0]
}
