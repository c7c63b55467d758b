package verification

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const titlePrefix = "Live Verification for "

// Title derives the display title for an object class.
func Title(objectClass string) string {
	return titlePrefix + cases.Title(language.English).String(objectClass)
}
