package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

const (
	// DefaultWindow must cover the display's refresh interval plus expected
	// round-trip latency and clock skew, so a token scanned near a window
	// boundary still lands inside the one-window grace period.
	DefaultWindow = 30 * time.Second

	// DefaultLength is the hex length tokens are truncated to; 16 hex chars
	// keeps QR payloads compact while leaving 64 bits of token space.
	DefaultLength = 16
)

// Authenticator derives and validates rotating proof tokens for a session.
// It holds no state beyond its configuration: validity is a pure function of
// (secret, sessionID, now), so any number of instances sharing the secret can
// validate independently.
type Authenticator struct {
	secret []byte
	window time.Duration
	length int
}

// New builds an Authenticator. The secret is required and comes from
// configuration; there is no embedded default.
func New(secret string, window time.Duration, length int) (*Authenticator, error) {
	if secret == "" {
		return nil, errors.New("token: signing secret required")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if length <= 0 || length > sha256.Size*2 {
		length = DefaultLength
	}
	return &Authenticator{secret: []byte(secret), window: window, length: length}, nil
}

// Window returns the configured window length.
func (a *Authenticator) Window() time.Duration { return a.window }

// Issue returns the token for the window containing now, the window index it
// belongs to, and how long until the window rolls over.
func (a *Authenticator) Issue(sessionID string, now time.Time) (token string, window int64, expiresIn time.Duration) {
	window = a.windowIndex(now)
	token = a.derive(sessionID, window)
	next := time.Unix(0, (window+1)*int64(a.window))
	return token, window, next.Sub(now)
}

// Validate checks a presented token against the current window and the
// immediately preceding one. The grace window tolerates a token fetched just
// before a boundary arriving just after it.
func (a *Authenticator) Validate(sessionID, token string, now time.Time) bool {
	if token == "" {
		return false
	}
	current := a.windowIndex(now)
	for _, w := range []int64{current, current - 1} {
		if hmac.Equal([]byte(token), []byte(a.derive(sessionID, w))) {
			return true
		}
	}
	return false
}

func (a *Authenticator) windowIndex(now time.Time) int64 {
	return now.UnixNano() / int64(a.window)
}

func (a *Authenticator) derive(sessionID string, window int64) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(window, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:a.length]
}
