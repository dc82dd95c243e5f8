// Package normalize turns raw supplier-provided strings into canonical
// comparison keys. Every function is total and idempotent: empty input yields
// "" and normalizing an already-normalized value returns it unchanged.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/medicalexcom/avidiatech-match/internal/model"
)

var (
	nonKeyChars  = regexp.MustCompile(`[^\w\- ]+`)
	nonSKUChars  = regexp.MustCompile(`[^a-z0-9_-]+`)
	multiSpace   = regexp.MustCompile(`\s{2,}`)
	markSymbols  = strings.NewReplacer("™", "", "®", "", "℠", "", "©", "")
	zeroWidthSet = map[rune]bool{
		'\u200b': true, // zero width space
		'\u200c': true, // zero width non-joiner
		'\u200d': true, // zero width joiner
		'\u2060': true, // word joiner
		'\ufeff': true, // byte order mark
	}
)

// Key lowercases, folds accents and compatibility forms, maps Unicode spaces
// and zero-width characters to a plain space, strips everything but word
// characters, hyphens and spaces, and collapses whitespace.
func Key(s string) string {
	if s == "" {
		return ""
	}
	if folded, _, err := transform.String(foldAccents(), s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if zeroWidthSet[r] || unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, s)
	s = nonKeyChars.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// foldAccents returns a fresh transformer; chains carry state and must not be
// shared across goroutines.
func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// SKU lowercases and keeps only [a-z0-9_-].
func SKU(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	return nonSKUChars.ReplaceAllString(s, "")
}

// NDCItemCode removes all whitespace and uppercases. NDC codes compare
// case-insensitively but are stored uppercase.
func NDCItemCode(s string) string {
	if s == "" {
		return ""
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || zeroWidthSet[r] {
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(s)
}

// ProductName strips trademark marks, collapses whitespace and lowercases.
func ProductName(s string) string {
	if s == "" {
		return ""
	}
	s = markSymbols.Replace(s)
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SupplierKey canonicalizes a supplier identifier to trimmed lowercase.
func SupplierKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Request derives every comparison key for req.
func Request(req model.Request) model.NormalizedKey {
	return model.NormalizedKey{
		SupplierKey:      SupplierKey(req.SupplierKey),
		SKUNorm:          SKU(req.SKU),
		NDCItemCodeNorm:  NDCItemCode(req.NDCItemCode),
		ProductNameNorm:  ProductName(req.ProductName),
		BrandNorm:        Key(req.BrandName),
		SupplierNameNorm: Key(req.SupplierName),
	}
}
