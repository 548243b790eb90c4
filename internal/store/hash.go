package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// ContentHash returns the hex SHA-256 of content. Buffers whose hash is
// unchanged since the last outline pass are skipped.
func ContentHash(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

// ComputeSignatureHash computes a deterministic hash from a symbol's semantic
// identity: name, kind and modifiers. Location changes do NOT affect the hash.
func ComputeSignatureHash(name, kind string, modifiers []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)

	sorted := make([]string, len(modifiers))
	copy(sorted, modifiers)
	sort.Strings(sorted)
	fmt.Fprintf(h, "modifiers:%s\n", strings.Join(sorted, ","))

	return fmt.Sprintf("%x", h.Sum(nil))
}
