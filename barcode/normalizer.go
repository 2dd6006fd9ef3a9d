// Package barcode turns raw scanner and keyboard input into scan codes.
package barcode

const (
	// DefaultMaxLength 是收銀台輸入欄位的長度上限
	DefaultMaxLength = 20
	// ScannerMaxLength 是通用掃描器欄位的長度上限
	ScannerMaxLength = 40
)

// Normalizer keeps only [A-Za-z0-9-./] and truncates to MaxLength.
type Normalizer struct {
	MaxLength int
}

func NewNormalizer(maxLength int) Normalizer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return Normalizer{MaxLength: maxLength}
}

// Normalize drops rejected characters silently. The caller should write the
// result back into the input field so the display matches what is submitted.
func (n Normalizer) Normalize(raw string) string {
	limit := n.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}

	out := make([]byte, 0, min(len(raw), limit))
	for i := 0; i < len(raw) && len(out) < limit; i++ {
		if allowed(raw[i]) {
			out = append(out, raw[i])
		}
	}
	return string(out)
}

// Normalize uses DefaultMaxLength.
func Normalize(raw string) string {
	return NewNormalizer(DefaultMaxLength).Normalize(raw)
}

func allowed(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '/':
		return true
	}
	return false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
