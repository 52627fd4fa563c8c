// Package sqlesc builds single-quoted SQL string literals for statements that
// cannot take bound parameters, such as PRAGMA key.
package sqlesc

import "strings"

var replacer = strings.NewReplacer(
	"\x00", `\0`,
	"\x08", `\b`,
	"\x09", `\t`,
	"\x1a", `\z`,
	"\n", `\n`,
	"\r", `\r`,
	`\`, `\\`,
	"%", `\%`,
	"'", "''",
)

// Escape translates the characters that are unsafe inside a quoted literal
// and leaves every other character untouched.
func Escape(s string) string { return replacer.Replace(s) }

// Quote returns s as a complete single-quoted literal.
func Quote(s string) string { return "'" + Escape(s) + "'" }
