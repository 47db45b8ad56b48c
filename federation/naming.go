package federation

import "strings"

// LocalName derives the local identifier for a proxied remote tool or
// prompt: lower(prefix_remoteName) with internal whitespace runs squashed
// to single underscores. It is a pure function of its inputs, so
// re-registration after a reconnect regenerates identical identifiers.
func LocalName(prefix, remoteName string) string {
	combined := prefix + "_" + remoteName
	return strings.ToLower(strings.Join(strings.Fields(combined), "_"))
}
