package auth

import "testing"

func TestHashPasswordIsDeterministic(t *testing.T) {
	a := HashPassword("hunter2")
	b := HashPassword("hunter2")
	if string(a) != string(b) {
		t.Fatal("expected identical hash for identical password")
	}
	if len(a) != 48 {
		t.Fatalf("expected a 384-bit (48-byte) digest, got %d bytes", len(a))
	}
}

func TestHashPasswordDiffersPerInput(t *testing.T) {
	if string(HashPassword("a")) == string(HashPassword("b")) {
		t.Fatal("expected different passwords to hash differently")
	}
}

func TestChallengeResponseRoundTrip(t *testing.T) {
	pwHash := HashPassword("hunter2")
	challenge, err := GenerateChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if len(challenge) != ChallengeSize {
		t.Fatalf("expected %d-byte challenge, got %d", ChallengeSize, len(challenge))
	}
	response := Combine(pwHash, challenge)
	if !Verify(pwHash, challenge, response) {
		t.Fatal("expected verify to accept a correctly combined response")
	}
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	challenge, _ := GenerateChallenge()
	response := Combine(HashPassword("correct"), challenge)
	if Verify(HashPassword("wrong"), challenge, response) {
		t.Fatal("expected verify to reject a response from the wrong password")
	}
}

func TestVerifyRejectsReplayedChallenge(t *testing.T) {
	pwHash := HashPassword("hunter2")
	challengeA, _ := GenerateChallenge()
	challengeB, _ := GenerateChallenge()
	response := Combine(pwHash, challengeA)
	if Verify(pwHash, challengeB, response) {
		t.Fatal("expected verify to reject a response combined against a different challenge")
	}
}

func TestGeneratePassLengthAndCharset(t *testing.T) {
	pass, err := GeneratePass()
	if err != nil {
		t.Fatal(err)
	}
	if len(pass) < 15 || len(pass) > 19 {
		t.Fatalf("expected a 15-19 char password, got %d chars", len(pass))
	}
	for _, c := range pass {
		if !containsRune(passChars, c) {
			t.Fatalf("unexpected character %q outside the allowed charset", c)
		}
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

func TestStatusStringNamesEveryValue(t *testing.T) {
	for _, s := range []Status{Unauthenticated, Guest, Unregistered, SignedIn} {
		if s.String() == "invalid" {
			t.Fatalf("expected %d to have a name", s)
		}
	}
}
