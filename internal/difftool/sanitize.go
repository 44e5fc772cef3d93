package difftool

import (
	"regexp"
	"strings"
)

var ansiRx = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// noiseRx lines are tool chatter that leaks into stdout when the CLI is
// freshly installed or verbose: install banners, progress, loaded-schema
// notices. They are never part of the SQL script.
var noiseRx = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(npm|npx|yarn|pnpm)\b`),
	regexp.MustCompile(`(?i)^(added|audited|found) \d+ package`),
	regexp.MustCompile(`(?i)^installing`),
	regexp.MustCompile(`(?i)^(info|warn|warning|debug)\b`),
	regexp.MustCompile(`(?i)schema loaded from`),
	regexp.MustCompile(`(?i)^datasource\b`),
	regexp.MustCompile(`(?i)^environment variables loaded`),
	regexp.MustCompile(`^[✔✖⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏]`),
}

// Sanitize strips ANSI escape sequences and known non-SQL noise lines from
// raw diff tool output and trims surrounding whitespace.
func Sanitize(raw string) string {
	clean := ansiRx.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r\n", "\n")

	var kept []string
	for _, line := range strings.Split(clean, "\n") {
		if isNoise(strings.TrimSpace(line)) {
			continue
		}

		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isNoise(line string) bool {
	if line == "" {
		return false
	}

	for _, rx := range noiseRx {
		if rx.MatchString(line) {
			return true
		}
	}

	return false
}

// LooksLikeSQL reports whether the first non-blank line of the script is a
// SQL comment or a CREATE/ALTER statement. This is a shape check, not a
// parse: the verifier is the real correctness gate.
func LooksLikeSQL(script string) bool {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "--") || strings.HasPrefix(line, "/*") {
			return true
		}

		upper := strings.ToUpper(line)
		return strings.HasPrefix(upper, "CREATE ") || strings.HasPrefix(upper, "ALTER ")
	}

	return false
}
