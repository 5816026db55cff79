package webhook

import (
	"strings"
	"testing"
	"time"
)

func TestSign_Format(t *testing.T) {
	ts := time.Unix(1767225600, 0)
	sig := Sign([]byte(`{"slug":"uti"}`), "secret", ts)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("Sign() = %q, missing sha256= prefix", sig)
	}
	if got := len(strings.TrimPrefix(sig, "sha256=")); got != 64 {
		t.Fatalf("hex length = %d, want 64", got)
	}
	if sig != Sign([]byte(`{"slug":"uti"}`), "secret", ts) {
		t.Fatal("Sign() is not deterministic")
	}
	if sig == Sign([]byte(`{"slug":"uti"}`), "secret", ts.Add(time.Second)) {
		t.Fatal("timestamp is not bound into the signature")
	}
}

func TestVerify(t *testing.T) {
	now := time.Unix(1767225600, 0)
	payload := []byte(`{"outcome":"DECLINE"}`)
	sig := Sign(payload, "s3cret", now)
	ts := "1767225600"

	tests := []struct {
		name      string
		payload   []byte
		signature string
		timestamp string
		secret    string
		now       time.Time
		want      bool
	}{
		{name: "valid", payload: payload, signature: sig, timestamp: ts, secret: "s3cret", now: now, want: true},
		{name: "within tolerance", payload: payload, signature: sig, timestamp: ts, secret: "s3cret", now: now.Add(4 * time.Minute), want: true},
		{name: "replayed too late", payload: payload, signature: sig, timestamp: ts, secret: "s3cret", now: now.Add(10 * time.Minute), want: false},
		{name: "wrong secret", payload: payload, signature: sig, timestamp: ts, secret: "other", now: now, want: false},
		{name: "tampered payload", payload: []byte(`{"outcome":"PASS"}`), signature: sig, timestamp: ts, secret: "s3cret", now: now, want: false},
		{name: "bad timestamp", payload: payload, signature: sig, timestamp: "yesterday", secret: "s3cret", now: now, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.payload, tt.signature, tt.timestamp, tt.secret, tt.now, 5*time.Minute); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}
