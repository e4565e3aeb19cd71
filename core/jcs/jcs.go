package jcs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

const digestAlgorithmTag = "sha256:"

// CanonicalizeJSON returns the RFC 8785 (JCS) canonical form of JSON input.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	return jcs.Transform(input)
}

// MarshalCanonical encodes a value as canonical JSON so that identical values
// always serialize to identical bytes.
func MarshalCanonical(value any) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}

// DigestBytes hashes raw bytes and returns a tagged digest ("sha256:<hex>").
func DigestBytes(input []byte) string {
	sum := sha256.Sum256(input)
	return digestAlgorithmTag + hex.EncodeToString(sum[:])
}

// DigestJCS canonicalizes JSON (RFC 8785) and returns a tagged sha256 digest.
func DigestJCS(input []byte) (string, error) {
	canonical, err := CanonicalizeJSON(input)
	if err != nil {
		return "", err
	}
	return DigestBytes(canonical), nil
}

// DigestValue canonicalizes an encodable value and returns a tagged sha256 digest.
func DigestValue(value any) (string, error) {
	canonical, err := MarshalCanonical(value)
	if err != nil {
		return "", err
	}
	return DigestBytes(canonical), nil
}
