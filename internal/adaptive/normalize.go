package adaptive

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MaxQueryRunes bounds a single question.
const MaxQueryRunes = 2000

var (
	ErrEmptyQuery   = errors.New("query is empty")
	ErrQueryTooLong = errors.New("query is too long")
)

// Normalize canonicalizes a raw question: NFKC, case folding, trimming and
// whitespace collapsing. Equal questions typed differently normalize to the
// same string.
func Normalize(raw string) (string, error) {
	s := norm.NFKC.String(raw)
	// Casers are stateful, so one per call.
	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyQuery
	}
	if utf8.RuneCountInString(s) > MaxQueryRunes {
		return "", ErrQueryTooLong
	}
	return s, nil
}

// CacheKey derives the stable lookup key for a (bucket, normalized query) pair.
func CacheKey(bucket GradeBucket, normalized string) string {
	h := sha256.New()
	h.Write([]byte(bucket))
	h.Write([]byte{0x1f})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}

// Topic is the short label analytics rows are grouped by.
func Topic(query string) string {
	q := strings.TrimSpace(query)
	if utf8.RuneCountInString(q) <= 100 {
		return q
	}
	return string([]rune(q)[:100])
}
