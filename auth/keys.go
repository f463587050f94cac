package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"strings"
)

const connectionKeyLength = 32

// KeyRing is the allow-list of secret keys the game servers present to mint
// tickets. Entries are either plain keys or Argon2id hashes of them.
type KeyRing struct {
	plain  [][]byte
	hashed []string
	log    *slog.Logger
}

func NewKeyRing(keys []string, log *slog.Logger) *KeyRing {
	ring := &KeyRing{log: log}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		switch {
		case key == "":
			continue
		case isHashed(key):
			ring.hashed = append(ring.hashed, key)
		default:
			ring.plain = append(ring.plain, []byte(key))
		}
	}
	return ring
}

func (k *KeyRing) Len() int {
	return len(k.plain) + len(k.hashed)
}

// Allows reports whether secret matches one of the configured keys.
// Every plain entry is compared so the timing does not depend on which one matched.
func (k *KeyRing) Allows(secret string) bool {
	if secret == "" {
		return false
	}
	found := 0
	for _, key := range k.plain {
		found |= subtle.ConstantTimeCompare(key, []byte(secret))
	}
	if found == 1 {
		return true
	}
	for _, encoded := range k.hashed {
		ok, err := CompareSecret(secret, encoded)
		if err != nil {
			k.log.Warn("Malformed hashed secret key", "error", err)
			continue
		}
		if ok {
			return true
		}
	}
	return false
}

// NewConnectionKey mints an unguessable single-use key for a ticket.
func NewConnectionKey() (string, error) {
	b := make([]byte, connectionKeyLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
