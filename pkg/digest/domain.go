package digest

import (
	"strings"
	"unicode"
)

// GeneralDomain is used when the model leaves the domain blank.
const GeneralDomain = "general"

// DomainNormalizer folds noisy domain labels onto a stable key so that
// "Databases", "databases." and "DB" land in the same partition.
type DomainNormalizer struct {
	aliases map[string]string
}

func NewDomainNormalizer(aliases map[string]string) *DomainNormalizer {
	n := &DomainNormalizer{aliases: make(map[string]string, len(aliases))}
	for from, to := range aliases {
		n.aliases[fold(from)] = fold(to)
	}
	return n
}

func (n *DomainNormalizer) Normalize(raw string) string {
	key := fold(raw)
	if key == "" {
		return GeneralDomain
	}
	if n != nil {
		if alias, ok := n.aliases[key]; ok && alias != "" {
			return alias
		}
	}
	return key
}

func fold(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}
