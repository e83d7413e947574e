package session

import (
	"context"
	"testing"

	"github.com/ytget/ytdlp/v2/errs"
)

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"watch", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"shorts", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"embed", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"v", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"youtu.be", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"watch with extra params", "https://www.youtube.com/watch?list=PL&v=dQw4w9WgXcQ&t=10s", "dQw4w9WgXcQ"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractVideoID(tt.in)
			if err != nil {
				t.Fatalf("extractVideoID(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("extractVideoID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractVideoID_Invalid(t *testing.T) {
	tests := []string{"", "https://example.com/", "not a url at all %%%", "https://example.com/watch?v=short"}
	for _, in := range tests {
		if _, err := extractVideoID(in); err == nil {
			t.Errorf("extractVideoID(%q) expected error, got nil", in)
		}
	}
}

func TestSession_SingleUse(t *testing.T) {
	e := NewExtractor(nil)
	s := e.NewSession()

	if !s.used.CompareAndSwap(false, true) {
		t.Fatal("expected first CompareAndSwap to succeed")
	}

	_, err := s.Extract(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != errs.ErrSessionReused {
		t.Errorf("Extract() on used session = %v, want ErrSessionReused", err)
	}
}

func TestSession_Cancel(t *testing.T) {
	e := NewExtractor(nil)
	s := e.NewSession()
	s.Cancel()
	if !s.cancelled.Load() {
		t.Error("expected cancelled flag set after Cancel()")
	}
}
