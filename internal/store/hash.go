package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ContentHash computes a deterministic hash of a declaration file's text
// and the names it declares. Name order does not affect the hash.
func ContentHash(content string, names []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "content:%d:%s\n", len(content), content)

	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	for _, n := range sorted {
		fmt.Fprintf(h, "name:%s\n", n)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// SourceHash hashes raw source bytes.
func SourceHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}
