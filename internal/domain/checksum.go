package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// Checksum canonicalizes payload per RFC 8785 (JCS) and returns the hex
// SHA-256 digest — the same canonicalize-then-hash mechanism the teacher
// uses for ledger event integrity, generalized to MetricPoint value+metadata
// (spec §3, §6: "stable field ordering so that replaying the SHA-256
// produces the same checksum").
func Checksum(payload ChecksumPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
