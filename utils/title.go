package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

var (
	trailingYearRe = regexp.MustCompile(`\s*\(\s*\d{4}\s*\)\s*$`)
	nonAlnumRe     = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeTitle reduces a title to the form used in cache and identity keys:
// a trailing "(YYYY)" is dropped, accents are transliterated, the rest is
// lowercased and everything but letters and digits is removed.
// "Amélie (2001)" and "amelie" normalize to the same key.
func NormalizeTitle(title string) string {
	title = trailingYearRe.ReplaceAllString(strings.TrimSpace(title), "")
	title = strings.ToLower(unidecode.Unidecode(title))
	return nonAlnumRe.ReplaceAllString(title, "")
}

// TitleYearKey joins a normalized title and year; a zero year is left empty.
func TitleYearKey(title string, year int) string {
	y := ""
	if year > 0 {
		y = strconv.Itoa(year)
	}
	return NormalizeTitle(title) + ":" + y
}
