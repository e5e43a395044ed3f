// Package gateways defines interfaces for external service adapters.
package gateways

import (
	"context"

	"github.com/ochairo/feedstock/internal/domain/entities"
)

// SourceFetcher downloads and unpacks recipe sources
type SourceFetcher interface {
	// FetchSource downloads the recipe's source archive into the cache
	FetchSource(ctx context.Context, recipe *entities.Recipe) (*entities.Artifact, error)

	// ExtractSource unpacks an archive and returns the source tree artifact
	ExtractSource(ctx context.Context, archive *entities.Artifact, destDir string) (*entities.Artifact, error)
}

// ChecksumVerifier verifies archive digests
type ChecksumVerifier interface {
	VerifyChecksum(ctx context.Context, filePath, hashType, expectedSum string) error
}

// SignatureVerifier checks detached PGP signatures
type SignatureVerifier interface {
	ImportKeysFromURL(ctx context.Context, keysURL string) error
	VerifySignature(ctx context.Context, filePath, sigURL string) error
}
