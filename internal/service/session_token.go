package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// newSessionToken derives an unguessable per-attempt secret from the
// (user, exam) pair, the issue time and a random nonce, keyed by the
// server secret. The token binds the attempt to the client that started
// it; a stale second tab presenting the wrong token is rejected before
// any state mutates.
func newSessionToken(secret string, examID uuid.UUID, userID int) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%d:%d:", examID, userID, time.Now().UnixNano())

	var nonce [16]byte
	_, _ = rand.Read(nonce[:])
	mac.Write(nonce[:])

	return hex.EncodeToString(mac.Sum(nil))
}

// tokenMatches compares tokens in constant time.
func tokenMatches(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
