package corpus

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// Fingerprint is a SHA-256 digest over every collection name and the JSON
// encoding of each of its documents, in corpus order. Any change to content,
// order or membership changes it.
func Fingerprint(c *Corpus) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for _, col := range c.Collections {
		if _, err := io.WriteString(h, col.Name+"\n"); err != nil {
			return "", err
		}
		for i := range col.Documents {
			if err := enc.Encode(&col.Documents[i]); err != nil {
				return "", fmt.Errorf("encoding %s[%d] for fingerprint: %w", col.Name, i, err)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
