package utils

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Fingerprint returns a stable hex digest of an image reference.
func Fingerprint(imageURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(imageURL)))
	return fmt.Sprintf("%x", sum)
}
