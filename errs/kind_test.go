package errs

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "with field",
			err:      New(KindInvalidURL, "no video id").WithField("url"),
			expected: "InvalidUrl: no video id (field: url)",
		},
		{
			name:     "without field",
			err:      New(KindVideoNotFound, "all clients failed"),
			expected: "VideoNotFound: all clients failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestError_MarshalJSON(t *testing.T) {
	e := New(KindDecipherFailed, "transform threw")
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["kind"] != string(KindDecipherFailed) {
		t.Errorf("kind = %v", out["kind"])
	}
	if out["error"] != e.Error() {
		t.Errorf("error = %v, want %v", out["error"], e.Error())
	}
}

func TestKindOfAndIs(t *testing.T) {
	wrapped := Wrap(KindHTTPError, "non-2xx", errors.New("500"))
	if KindOf(wrapped) != KindHTTPError {
		t.Errorf("KindOf = %v", KindOf(wrapped))
	}
	if !Is(wrapped, KindHTTPError) {
		t.Error("Is(wrapped, KindHTTPError) = false")
	}
	if Is(wrapped, KindVideoNotFound) {
		t.Error("Is(wrapped, KindVideoNotFound) = true")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf on a non-*Error should return the zero Kind")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	wrapped := Wrap(KindRequestFailed, "get failed", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through Unwrap to the cause")
	}
}
