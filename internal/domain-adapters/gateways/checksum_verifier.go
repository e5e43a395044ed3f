package gateways

import (
	"context"
	"crypto/md5"  //nolint:gosec // G501: md5 digests are still published by some source archives
	"crypto/sha1" //nolint:gosec // G505: sha1 digests are still published by some source archives
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"go.trai.ch/zerr"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/services"
)

// checksumVerifier implements checksum verification using pure Go
type checksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewChecksumVerifier() *checksumVerifier {
	return &checksumVerifier{}
}

// VerifyChecksum verifies a file's digest. The expected value is checked for
// the right length and alphabet before the file is read.
func (v *checksumVerifier) VerifyChecksum(ctx context.Context, filePath, hashType, expectedSum string) error {
	if err := services.ValidateChecksum(hashType, expectedSum); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	actualSum, err := v.CalculateChecksum(filePath, hashType)
	if err != nil {
		return err
	}

	if !strings.EqualFold(actualSum, expectedSum) {
		err := fmt.Errorf("%w: expected %s, got %s", entities.ErrChecksumMismatch, strings.ToLower(expectedSum), actualSum)
		return zerr.With(zerr.With(err, "file", filePath), "actual", actualSum)
	}

	return nil
}

// CalculateChecksum calculates the hex digest of a file
func (v *checksumVerifier) CalculateChecksum(filePath, hashType string) (string, error) {
	h, err := newHash(hashType)
	if err != nil {
		return "", err
	}

	//nolint:gosec // G304: File path is user-provided for checksum calculation
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func newHash(hashType string) (hash.Hash, error) {
	switch strings.ToLower(hashType) {
	case "md5":
		return md5.New(), nil //nolint:gosec // see import
	case "sha1":
		return sha1.New(), nil //nolint:gosec // see import
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		_, err := services.DigestLength(hashType)
		return nil, err
	}
}
