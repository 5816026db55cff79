package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Delivery headers.
const (
	HeaderSignature = "X-Safetygate-Signature"
	HeaderTimestamp = "X-Safetygate-Timestamp"
	HeaderEvent     = "X-Safetygate-Event"
	HeaderDelivery  = "X-Safetygate-Delivery"
)

// Sign computes "sha256=<hex>" over "<unix timestamp>.<payload>". Binding the
// timestamp lets receivers reject replays.
func Sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature and that the timestamp header is within
// tolerance of now.
func Verify(payload []byte, signature, timestamp, secret string, now time.Time, tolerance time.Duration) bool {
	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	ts := time.Unix(unix, 0)
	if d := now.Sub(ts); d > tolerance || d < -tolerance {
		return false
	}
	expected := Sign(payload, secret, ts)
	return hmac.Equal([]byte(signature), []byte(expected))
}
