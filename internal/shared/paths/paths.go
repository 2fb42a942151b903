package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

const (
	hexDigits = "0123456789abcdef"

	// longer encodings are replaced by a digest to stay under filename limits
	maxSegment = 200
)

// OwnerDir returns the base directory for an owner under root
func OwnerDir(root, ownerID string) string {
	return filepath.Join(root, Segment(ownerID))
}

// Segment turns an arbitrary identifier into a single safe path component.
// Letters, digits, '-' and '.' are kept. Every other byte, '_' included, is
// written as '_' plus two hex digits, so distinct identifiers always map to
// distinct components. Identifiers made only of dots are escaped in full.
func Segment(s string) string {
	if s == "" {
		return "_"
	}
	dots := strings.Trim(s, ".") == ""

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !dots && safe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('_')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}

	if b.Len() > maxSegment {
		// 'h' is not a hex digit, so digests never collide with escapes
		sum := sha256.Sum256([]byte(s))
		return "_h" + hex.EncodeToString(sum[:16])
	}
	return b.String()
}

func safe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.':
		return true
	}
	return false
}

// Within reports whether path is base or a descendant of it. Both must be
// absolute and clean for the answer to be meaningful.
func Within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateOwnerID checks that an owner id can be used as a directory key
func ValidateOwnerID(ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("owner ID cannot be empty")
	}
	if len(ownerID) > MaxOwnerIDLength {
		return fmt.Errorf("owner ID too long (max %d characters)", MaxOwnerIDLength)
	}
	return nil
}

// MaxOwnerIDLength bounds owner ids accepted from the identity header
const MaxOwnerIDLength = 128
