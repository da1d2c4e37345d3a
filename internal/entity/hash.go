package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainSnapshot separates snapshot fingerprints from any other hash use.
// The version suffix allows changing the algorithm later.
const DomainSnapshot = "graphstack/snapshot/v1"

// Fingerprint returns a content hash of an entity snapshot:
// SHA256(domain + 0x00 + ref + 0x00 + canonical attributes).
func Fingerprint(ref Ref, attrs Attributes) (string, error) {
	canonical, err := MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", ref, err)
	}
	h := sha256.New()
	h.Write([]byte(DomainSnapshot))
	h.Write([]byte{0x00})
	h.Write([]byte(ref.String()))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
