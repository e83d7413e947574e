// Package profiles holds the fixed Innertube client table the Parallel
// Fan-Out dials concurrently: client identity, request-context shape, and
// the headers each client expects on the wire.
package profiles

import "strconv"

// PoTokenPolicy describes whether a client profile requires a PO token to
// unlock playback on a given streaming protocol.
type PoTokenPolicy struct {
	Required    bool
	Recommended bool
}

// ClientProfile is one Innertube client identity the fan-out dials.
type ClientProfile struct {
	Name          string
	Version       string
	ContextNameID int
	UserAgent     string
	Host          string

	// AndroidSDK, OSName and OSVersion are not read by ContextClient: the
	// Android-shaped context.client block (androidSdkVersion/osName/osVersion)
	// is added, with fixed values, only for the profile named ANDROID_SDKLESS.
	AndroidSDK int
	OSName     string
	OSVersion  string

	// Platform is the context.client.platform value (e.g. "MOBILE", "TV",
	// "DESKTOP"). DeviceMake/DeviceModel are set only for profiles that
	// impersonate a concrete device; this is what distinguishes
	// ANDROID_SDKLESS (neither set) from a standard ANDROID profile (both
	// set), per spec.md §4.5.
	Platform    string
	DeviceMake  string
	DeviceModel string

	PoTokenPolicy PoTokenPolicy
}

// All is the fixed client table spec.md §4.5 names: ANDROID_SDKLESS,
// TVHTML5, WEB_SAFARI, WEB. Ordering is deliberate: ANDROID_SDKLESS and
// TVHTML5 rarely require a PO token and resolve fastest, so they are
// dialed first in the fan-out merge (the caller's channel-read order
// favors whichever response arrives, not this slice's order, but a
// faster-resolving profile still tends to win the race).
var All = []ClientProfile{
	{
		Name:          "ANDROID_SDKLESS",
		Version:       "1.9",
		ContextNameID: 3,
		UserAgent:     "com.google.android.youtube/1.9 (Linux; U; Android 11) gzip",
		Host:          "www.youtube.com",
		Platform:      "MOBILE",
		PoTokenPolicy: PoTokenPolicy{Required: false, Recommended: true},
	},
	{
		Name:          "TVHTML5",
		Version:       "7.20250312.04.00",
		ContextNameID: 7,
		UserAgent:     "Mozilla/5.0 (ChromiumStylePlatform) Cobalt/25.lts.30.1034943-gold (unlike Gecko), Unknown_TV_Unknown_0/Unknown (Unknown, Unknown)",
		Host:          "www.youtube.com",
		Platform:      "TV",
		DeviceMake:    "Generic",
		DeviceModel:   "Generic STB",
		PoTokenPolicy: PoTokenPolicy{Required: false, Recommended: false},
	},
	{
		Name:          "WEB_SAFARI",
		Version:       "2.20250312.04.00",
		ContextNameID: 1,
		UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
		Host:          "www.youtube.com",
		Platform:      "DESKTOP",
		PoTokenPolicy: PoTokenPolicy{Required: true, Recommended: true},
	},
	{
		Name:          "WEB",
		Version:       "2.20250312.04.00",
		ContextNameID: 1,
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36",
		Host:          "www.youtube.com",
		Platform:      "DESKTOP",
		PoTokenPolicy: PoTokenPolicy{Required: true, Recommended: true},
	},
}

// ClientNameCode returns the X-YouTube-Client-Name numeric header value.
func (p ClientProfile) ClientNameCode() string {
	if p.ContextNameID == 0 {
		return ""
	}
	return strconv.Itoa(p.ContextNameID)
}

// ContextClient builds the `context.client` block of an Innertube request
// body for this profile, matching the Android-shaped augmentation the
// teacher's GetPlayerResponse applies for ANDROID.
func (p ClientProfile) ContextClient() map[string]any {
	m := map[string]any{
		"clientName":    p.Name,
		"clientVersion": p.Version,
	}
	if p.Name == "ANDROID_SDKLESS" {
		m["androidSdkVersion"] = 30
		m["osName"] = "Android"
		m["osVersion"] = "11"
		m["userAgent"] = p.UserAgent
	}
	if p.Platform != "" {
		m["platform"] = p.Platform
	}
	// Device-make and device-model are included only when non-empty; this is
	// what distinguishes ANDROID_SDKLESS (neither set) from a standard
	// ANDROID profile (both set).
	if p.DeviceMake != "" {
		m["deviceMake"] = p.DeviceMake
	}
	if p.DeviceModel != "" {
		m["deviceModel"] = p.DeviceModel
	}
	return m
}

// RequestBody builds the full Innertube /player request body for this
// profile, videoID, and optional visitor data / PO token. contentCheckOk and
// racyCheckOk are always set true, per spec.md §4.6's
// `context(...) ⊕ {videoId, contentCheckOk:true, racyCheckOk:true}` rule, so
// age/content-gated videos resolve without a separate confirmation round
// trip.
func (p ClientProfile) RequestBody(videoID, visitorData, poToken string) map[string]any {
	context := map[string]any{"client": p.ContextClient()}
	if visitorData != "" {
		context["client"].(map[string]any)["visitorData"] = visitorData
	}
	body := map[string]any{
		"context":        context,
		"videoId":        videoID,
		"contentCheckOk": true,
		"racyCheckOk":    true,
	}
	if poToken != "" {
		body["serviceIntegrityDimensions"] = map[string]any{"poToken": poToken}
	}
	return body
}

// Headers builds the HTTP headers a request against this profile expects.
func (p ClientProfile) Headers(visitorData string) map[string]string {
	h := map[string]string{
		"Content-Type":              "application/json",
		"User-Agent":                p.UserAgent,
		"Accept":                    "*/*",
		"Accept-Language":           "en-US,en;q=0.9",
		"Accept-Encoding":           "gzip, deflate, br",
		"Referer":                   "https://www.youtube.com/",
		"Origin":                    "https://www.youtube.com",
		"X-YouTube-Client-Version":  p.Version,
		"X-Goog-Api-Format-Version": "1",
	}
	if code := p.ClientNameCode(); code != "" {
		h["X-YouTube-Client-Name"] = code
	}
	if visitorData != "" {
		h["x-goog-visitor-id"] = visitorData
	}
	return h
}
