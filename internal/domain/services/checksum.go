package services

import (
	"fmt"
	"sort"
	"strings"

	"go.trai.ch/zerr"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// digestHexLength maps supported hash types to the length of their hex digest
var digestHexLength = map[string]int{
	"md5":    32,
	"sha1":   40,
	"sha256": 64,
	"sha512": 128,
}

// SupportedHashTypes returns the checksum algorithms recipes may declare
func SupportedHashTypes() []string {
	types := make([]string, 0, len(digestHexLength))
	for t := range digestHexLength {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DigestLength returns the hex digest length for hashType
func DigestLength(hashType string) (int, error) {
	n, ok := digestHexLength[strings.ToLower(hashType)]
	if !ok {
		err := fmt.Errorf("%w: %q (supported: %s)",
			entities.ErrUnsupportedHashType, hashType, strings.Join(SupportedHashTypes(), ", "))
		return 0, zerr.With(err, "hash_type", hashType)
	}
	return n, nil
}

// ValidateChecksum checks that value is a well-formed hex digest for hashType.
func ValidateChecksum(hashType, value string) error {
	want, err := DigestLength(hashType)
	if err != nil {
		return err
	}
	if len(value) != want {
		err := fmt.Errorf("%w: %s digest must be %d hex characters, got %d",
			entities.ErrMalformedChecksum, strings.ToLower(hashType), want, len(value))
		return zerr.With(zerr.With(err, "expected_length", want), "actual_length", len(value))
	}
	for i, c := range value {
		if !isHex(c) {
			err := fmt.Errorf("%w: non-hex character %q at position %d",
				entities.ErrMalformedChecksum, c, i)
			return zerr.With(err, "position", i)
		}
	}
	return nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
