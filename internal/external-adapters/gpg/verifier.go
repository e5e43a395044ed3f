// Package gpg verifies detached OpenPGP signatures of source archives.
package gpg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"

	"github.com/ochairo/feedstock/internal/domain/entities"
	"github.com/ochairo/feedstock/internal/domain/interfaces"
)

const (
	maxKeysFileSize  = 10 << 20
	maxSignatureSize = 10 << 10
	armorHeader      = "-----BEGIN PGP SIGNATURE-----"
)

// Verifier checks detached signatures against an in-memory keyring built
// from the project's published KEYS file.
type Verifier struct {
	keyring    openpgp.EntityList
	httpClient *http.Client
	logger     interfaces.Logger
}

// NewVerifier creates a new verifier with an empty keyring
func NewVerifier(logger interfaces.Logger) *Verifier {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &Verifier{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// ImportKeysFromURL imports every public key of an armored KEYS file
func (v *Verifier) ImportKeysFromURL(ctx context.Context, keysURL string) error {
	body, err := v.fetch(ctx, keysURL, maxKeysFileSize)
	if err != nil {
		return fmt.Errorf("failed to download KEYS file: %w", err)
	}

	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to parse KEYS file: %w", err)
	}
	if len(keys) == 0 {
		return fmt.Errorf("no keys found in KEYS file")
	}

	v.keyring = append(v.keyring, keys...)
	v.logger.Debug("imported signing keys", interfaces.F("url", keysURL), interfaces.F("count", len(keys)))
	return nil
}

// ImportKeyFromFile imports armored or binary public keys from a local file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	//nolint:gosec // G304: keyPath is user-provided for key import
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to open key file: %w", err)
	}

	keys, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keys, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to read key: %w", err)
		}
	}
	if len(keys) == 0 {
		return fmt.Errorf("no keys found in file")
	}

	v.keyring = append(v.keyring, keys...)
	return nil
}

// VerifySignature downloads the detached signature at sigURL and checks filePath against it
func (v *Verifier) VerifySignature(ctx context.Context, filePath, sigURL string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported, import a KEYS file first")
	}

	sig, err := v.fetch(ctx, sigURL, maxSignatureSize)
	if err != nil {
		return fmt.Errorf("failed to download signature: %w", err)
	}
	return v.verifyFile(filePath, sig)
}

// VerifySignatureFromFile checks filePath against a detached signature on disk
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) error {
	if len(v.keyring) == 0 {
		return fmt.Errorf("no GPG keys imported, import a KEYS file first")
	}

	//nolint:gosec // G304: sigPath is user-provided for verification
	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return fmt.Errorf("failed to open signature file: %w", err)
	}
	return v.verifyFile(filePath, sig)
}

// KeyringSize returns the number of imported keys
func (v *Verifier) KeyringSize() int {
	return len(v.keyring)
}

func (v *Verifier) verifyFile(filePath string, sig []byte) error {
	if len(sig) < 10 {
		return fmt.Errorf("%w: signature too small to be valid", entities.ErrSignatureInvalid)
	}

	//nolint:gosec // G304: filePath is the downloaded archive
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	var signer *openpgp.Entity
	if bytes.HasPrefix(bytes.TrimSpace(sig), []byte(armorHeader)) {
		signer, err = openpgp.CheckArmoredDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(v.keyring, f, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrSignatureInvalid, err)
	}

	for name := range signer.Identities {
		v.logger.Info("good signature", interfaces.F("file", filePath), interfaces.F("signer", name))
		break
	}
	return nil
}

func (v *Verifier) fetch(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	//nolint:errcheck // Defer close on HTTP response body
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}
