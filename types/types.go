// Package types holds the data model shared by the extraction pipeline:
// the format list returned for a video and the scalar metadata describing
// the video itself.
package types

// LiveStatus enumerates the broadcast state of a video.
type LiveStatus string

const (
	LiveStatusNotLive  LiveStatus = "not_live"
	LiveStatusIsLive   LiveStatus = "is_live"
	LiveStatusWasLive  LiveStatus = "was_live"
	LiveStatusPostLive LiveStatus = "post_live"
)

// Availability enumerates the visibility/authorization state of a video.
type Availability string

const (
	AvailabilityPublic    Availability = "public"
	AvailabilityUnlisted  Availability = "unlisted"
	AvailabilityPrivate   Availability = "private"
	AvailabilityNeedsAuth Availability = "needs_auth"
)

// Language preference weights used when multiple audio tracks are present.
// Original audio ranks highest, a descriptive/accessibility track lowest.
const (
	LangPrefDescriptive = -10
	LangPrefOriginal    = 10
	LangPrefDefault     = 5
	LangPrefOther       = -1
)

// CodecNone is the sentinel used for the video or audio codec axis when a
// format carries no payload on that axis (e.g. an audio-only adaptive
// format has VCodec == CodecNone).
const CodecNone = "none"

// Format describes a single encoded variant of a video, after cipher and
// n-parameter rewriting has produced a final playable URL.
type Format struct {
	Itag     int    `json:"itag"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Ext      string `json:"ext"`
	VCodec   string `json:"vcodec"`
	ACodec   string `json:"acodec"`

	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
	FPS    int `json:"fps,omitempty"`

	AudioSampleRate int `json:"audio_sample_rate,omitempty"`
	AudioChannels   int `json:"audio_channels,omitempty"`

	TBR float64 `json:"tbr,omitempty"`
	ABR float64 `json:"abr,omitempty"`
	VBR float64 `json:"vbr,omitempty"`

	ContentLength int64 `json:"content_length,omitempty"`

	Language           string `json:"language,omitempty"`
	LanguagePreference int    `json:"language_preference,omitempty"`

	// Cosmetic fields carried from the original implementation's display
	// layer; populated best-effort, never required for correctness.
	FormatNote   string `json:"format_note,omitempty"`
	Container    string `json:"container,omitempty"`
	DynamicRange string `json:"dynamic_range,omitempty"`

	// Kept for call sites and tests that predate the full field set:
	// Quality mirrors qualityLabel, Bitrate/Size the raw wire values.
	Quality         string `json:"quality,omitempty"`
	Bitrate         int    `json:"bitrate,omitempty"`
	Size            int64  `json:"size,omitempty"`
	SignatureCipher string `json:"signature_cipher,omitempty"`
}

// HasMedia reports whether the format carries at least one media axis,
// per the invariant: vcodec != "none" or acodec != "none".
func (f Format) HasMedia() bool {
	return f.VCodec != CodecNone || f.ACodec != CodecNone
}

// Thumbnail describes one available thumbnail image.
type Thumbnail struct {
	ID     string `json:"id,omitempty"`
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Chapter describes a named section of the video timeline.
type Chapter struct {
	Title     string  `json:"title"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// VideoInfo describes the full result of one extraction.
type VideoInfo struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Uploader    string `json:"uploader,omitempty"`
	Channel     string `json:"channel,omitempty"`
	ChannelID   string `json:"channel_id,omitempty"`
	ChannelURL  string `json:"channel_url,omitempty"`

	Duration       int    `json:"duration"`
	DurationString string `json:"duration_string,omitempty"`
	UploadDate     string `json:"upload_date,omitempty"`
	ViewCount      int64  `json:"view_count,omitempty"`
	LikeCount      int64  `json:"like_count,omitempty"`

	LiveStatus   LiveStatus   `json:"live_status"`
	Availability Availability `json:"availability"`
	AgeLimit     int          `json:"age_limit,omitempty"`

	Thumbnails []Thumbnail `json:"thumbnails,omitempty"`
	Chapters   []Chapter   `json:"chapters,omitempty"`
	Formats    []Format    `json:"formats"`
	Tags       []string    `json:"tags,omitempty"`
	Categories []string    `json:"categories,omitempty"`
}

// PlaylistInfo describes playlist information.
type PlaylistInfo struct {
	ID          string
	Title       string
	Description string
	Author      string
	VideoCount  int
	ViewCount   int64
}

// SearchResult describes one videoRenderer entry from a search response.
type SearchResult struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Channel       string `json:"channel,omitempty"`
	ChannelID     string `json:"channel_id,omitempty"`
	Duration      int    `json:"duration,omitempty"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	ViewCount     int64  `json:"view_count,omitempty"`
	PublishedTime string `json:"published_time,omitempty"`
	Description   string `json:"description,omitempty"`
}

// SearchOptions is the parsed form of a `ytsearch...:` URL shortcut.
type SearchOptions struct {
	Query      string
	MaxResults int
	SortByDate bool
}
