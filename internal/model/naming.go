package model

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MapTablePrefix starts every map table name.
	MapTablePrefix = "migrate_map_"

	// MessageTablePrefix starts every message table name.
	MessageTablePrefix = "migrate_message_"

	// MaxTableNameLength is the identifier limit table names are cut to,
	// including any external prefix. 63 is the PostgreSQL limit and the
	// smallest among supported engines.
	MaxTableNameLength = 63

	// DerivativeSeparator splits a derivative migration id into its base
	// (family) id and derivative part.
	DerivativeSeparator = ":"
)

// MachineName flattens a migration id into a table-name fragment:
// lower-cased, with ":" namespaces replaced by "__".
func MachineName(migrationID string) string {
	// A Caser is stateful; never share one across goroutines.
	lower := cases.Lower(language.Und)
	return lower.String(strings.ReplaceAll(migrationID, DerivativeSeparator, "__"))
}

// MapTableName returns prefix + "migrate_map_<machine name>", truncated so the
// whole name fits MaxTableNameLength bytes.
func MapTableName(migrationID, prefix string) string {
	return prefix + truncateBytes(MapTablePrefix+MachineName(migrationID), MaxTableNameLength-len(prefix))
}

// MessageTableName returns prefix + "migrate_message_<machine name>", truncated
// so the whole name fits MaxTableNameLength bytes.
func MessageTableName(migrationID, prefix string) string {
	return prefix + truncateBytes(MessageTablePrefix+MachineName(migrationID), MaxTableNameLength-len(prefix))
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
