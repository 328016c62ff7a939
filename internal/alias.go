package internal

import (
	"crypto/rand"
)

// use Base58 (like Bitcoin): URL-safe and free of look-alike characters
const (
	alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

	// AliasLength gives 58^8 (~1.2e14) possible aliases, enough that random
	// generation is collision-resistant; the unique index has the final word.
	AliasLength = 8
)

func GenerateAlias() (string, error) {
	buf := make([]byte, AliasLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
