package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/FrogOnABike/tubely/internal/media"
)

// NewStorageKey returns "{category}/{64 hex chars}.{ext}" using 32 bytes from crypto/rand.
func NewStorageKey(category media.AspectCategory, ext string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return fmt.Sprintf("%s/%s.%s", category, hex.EncodeToString(b), ext), nil
}
