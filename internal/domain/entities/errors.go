package entities

import "go.trai.ch/zerr"

var (
	// ErrRecipeNotFound is returned when no recipe file exists for a name.
	ErrRecipeNotFound = zerr.New("recipe not found")

	// ErrInvalidRecipe is returned when a recipe fails validation.
	ErrInvalidRecipe = zerr.New("invalid recipe")

	// ErrMissingField is returned when a required recipe key is absent.
	ErrMissingField = zerr.New("missing required field")

	// ErrUnsupportedHashType is returned for checksum algorithms other than md5, sha1, sha256 and sha512.
	ErrUnsupportedHashType = zerr.New("unsupported hash type")

	// ErrMalformedChecksum is returned when a checksum is not the expected number of hex characters.
	ErrMalformedChecksum = zerr.New("malformed checksum")

	// ErrChecksumMismatch is returned when a downloaded archive does not hash to the declared value.
	ErrChecksumMismatch = zerr.New("checksum mismatch")

	// ErrUndefinedVariable is returned when a template references a name that was never set.
	ErrUndefinedVariable = zerr.New("undefined template variable")

	// ErrTemplateSyntax is returned for unterminated or unparsable template tags.
	ErrTemplateSyntax = zerr.New("template syntax error")

	// ErrSignatureInvalid is returned when a detached signature does not match the archive.
	ErrSignatureInvalid = zerr.New("signature verification failed")

	// ErrScriptFailed is returned when a build script exits non-zero.
	ErrScriptFailed = zerr.New("build script failed")

	// ErrImportTestFailed is returned when a test import or test command exits non-zero.
	ErrImportTestFailed = zerr.New("import test failed")
)
