// Package auth implements the password/challenge authentication
// protocol: SHA3-384 password hashing, a random server challenge, and a
// constant-time combined-hash verify. See SPEC_FULL.md [MODULE auth].
// Grounded on original_source/src/core/auth.h and auth.cpp.
package auth

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/sha3"
)

// ChallengeSize is the length in bytes of the server-issued random
// challenge, per spec.md §4.9.
const ChallengeSize = 20

// Status is a peer's position in the authentication lattice.
type Status int

const (
	Unauthenticated Status = iota
	Guest
	Unregistered
	SignedIn
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Guest:
		return "guest"
	case Unregistered:
		return "unregistered"
	case SignedIn:
		return "signed in"
	default:
		return "invalid"
	}
}

// HashPassword returns the SHA3-384 digest of a UTF-8 password, the form
// persisted in the auth store.
func HashPassword(password string) []byte {
	sum := sha3.Sum384([]byte(password))
	return sum[:]
}

// GenerateChallenge returns a fresh random challenge for a login attempt.
func GenerateChallenge() ([]byte, error) {
	buf := make([]byte, ChallengeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Combine returns SHA3-384(pwHash || challenge), the value both client and
// server compute independently and compare.
func Combine(pwHash, challenge []byte) []byte {
	sum := sha3.Sum384(append(append([]byte{}, pwHash...), challenge...))
	return sum[:]
}

// Verify reports whether response matches the expected combined hash of
// pwHash and challenge, compared in constant time.
func Verify(pwHash, challenge, response []byte) bool {
	expected := Combine(pwHash, challenge)
	return subtle.ConstantTimeCompare(expected, response) == 1
}

const passChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrtstuvwxyz0123456789_+&#!"

// GeneratePass returns a random 15-19 character password, used when the
// server mints a temporary one (e.g. /setpass with no explicit value).
func GeneratePass() (string, error) {
	lenByte := make([]byte, 1)
	if _, err := rand.Read(lenByte); err != nil {
		return "", err
	}
	n := 15 + int(lenByte[0])%5

	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = passChars[int(b)%len(passChars)]
	}
	return string(out), nil
}
