package utils

import "crypto/rand"

// Lowercase letters and digits without 0, easy to read out loud.
const tokenAlphabet = "123456789abcdefghijklmnopqrstuvwxyz"

const tokenLength = 6

// NewRoomToken returns a short random room identifier suitable for sharing
// as part of a URL.
func NewRoomToken() (string, error) {
	token := make([]byte, 0, tokenLength)
	buf := make([]byte, 2*tokenLength)
	for len(token) < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		token = takeTokenChars(token, buf)
	}
	return string(token[:tokenLength]), nil
}

// takeTokenChars maps random bytes onto the alphabet. Byte values in the
// tail that does not divide evenly into the alphabet are rejected, so every
// character is drawn with equal probability.
func takeTokenChars(token, random []byte) []byte {
	const limit = 256 - 256%len(tokenAlphabet)
	for _, b := range random {
		if int(b) >= limit {
			continue
		}
		token = append(token, tokenAlphabet[int(b)%len(tokenAlphabet)])
	}
	return token
}
