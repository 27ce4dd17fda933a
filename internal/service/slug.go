package service

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxSlugLength bounds client ids, derived or explicit.
const maxSlugLength = 64

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugify turns a display name into a lowercase-hyphen id:
// "Casa Nova Café" → "casa-nova-cafe". Accents are dropped whether the name
// arrives composed or decomposed.
func Slugify(name string) string {
	s := norm.NFD.String(strings.ToLower(strings.TrimSpace(name)))

	var b strings.Builder
	hyphen := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining accent left by NFD
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		default:
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return truncateSlug(b.String(), maxSlugLength)
}

// ValidSlug reports whether id is already in lowercase-hyphen form.
func ValidSlug(id string) bool {
	return len(id) <= maxSlugLength && slugPattern.MatchString(id)
}

func truncateSlug(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.TrimRight(s, "-")
}

// uniqueSlug appends -2, -3, ... to base until exists reports false. The base
// is shortened when needed so every candidate stays within maxSlugLength.
func uniqueSlug(base string, exists func(string) (bool, error)) (string, error) {
	candidate := truncateSlug(base, maxSlugLength)
	for n := 2; ; n++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		suffix := "-" + strconv.Itoa(n)
		candidate = truncateSlug(base, maxSlugLength-len(suffix)) + suffix
	}
}
