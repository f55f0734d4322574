package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the 32-byte SHA-256 content hash of a canonical Value's
// stable stringification.
func Hash(v Value) [32]byte {
	return sha256.Sum256([]byte(Stringify(v)))
}

// HashHex returns the lowercase hex encoding of Hash(v).
func HashHex(v Value) string {
	h := Hash(v)
	return hex.EncodeToString(h[:])
}

// HashConcatHex hashes the concatenation of already-hex-encoded hashes,
// decoding each back to bytes first. Used to fold a sequence of
// projectionHash values into one replay hash, the same way
// commitment.HashConcat folds proof blobs.
func HashConcatHex(hexHashes ...string) (string, error) {
	h := sha256.New()
	for _, hh := range hexHashes {
		raw, err := hex.DecodeString(hh)
		if err != nil {
			return "", err
		}
		h.Write(raw)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
