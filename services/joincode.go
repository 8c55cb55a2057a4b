package services

import (
	"crypto/rand"
	"fmt"
)

// Alphabet for join codes: lowercase letters and digits minus the glyphs that
// are easy to misread when typed from a projected screen (0/o, 1/l/i).
const joinCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"

const JoinCodeLength = 6

const maxJoinCodeAttempts = 5

func generateJoinCode() (string, error) {
	bytes := make([]byte, JoinCodeLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("reading random bytes for join code: %w", err)
	}

	code := make([]byte, JoinCodeLength)
	for i, b := range bytes {
		code[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(code), nil
}
