// Package ytdlp provides a high-level API to download YouTube videos.
//
// Features:
//   - Progressive formats (video+audio) with MP4 preference
//   - Signature deciphering and n-throttling support
//   - Simple format selection and progress reporting
package ytdlp
