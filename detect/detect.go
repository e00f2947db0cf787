// Package detect screens request payloads for injection attempts and redacts
// credentials before payloads reach a log line. All patterns are compiled once
// at package load.
package detect

import "regexp"

// Category names the attack family a payload matched.
type Category string

const (
	// CategorySQL is SQL injection.
	CategorySQL Category = "sql"
	// CategoryXSS is cross-site scripting.
	CategoryXSS Category = "xss"
	// CategoryCommand is OS command injection.
	CategoryCommand Category = "command"
	// CategoryPathTraversal is directory traversal.
	CategoryPathTraversal Category = "path_traversal"
)

// Match identifies the first pattern a payload tripped. Pattern is the regex
// source, suitable for audit trails.
type Match struct {
	Category Category
	Pattern  string
}

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\bUNION\b.*\bSELECT\b)`),
	regexp.MustCompile(`(?i)(\bSELECT\b.*\bFROM\b)`),
	regexp.MustCompile(`(?i)(\bINSERT\b.*\bINTO\b)`),
	regexp.MustCompile(`(?i)(\bUPDATE\b.*\bSET\b)`),
	regexp.MustCompile(`(?i)(\bDELETE\b.*\bFROM\b)`),
	regexp.MustCompile(`(?i)(\bDROP\b.*\bTABLE\b)`),
	regexp.MustCompile(`(?i)(\bDROP\b.*\bDATABASE\b)`),
	regexp.MustCompile(`(?i)(\bALTER\b.*\bTABLE\b)`),
	regexp.MustCompile(`(?i)(\bCREATE\b.*\bTABLE\b)`),
	regexp.MustCompile(`(?i)(\bEXEC\b|\bEXECUTE\b)`),
	regexp.MustCompile(`(?i)(\bSP_\w+)`),
	regexp.MustCompile(`(?i)(['"` + "`" + `]).*(\bOR\b|\bAND\b).*(\d+\s*=\s*\d+)`),
	regexp.MustCompile(`(?i)(\bOR\b|\bAND\b)\s+\d+\s*=\s*\d+`),
	regexp.MustCompile(`(--|#|/\*|\*/)`),
	regexp.MustCompile(`(?i)(\bUNION\b.*\bALL\b.*\bSELECT\b)`),
	regexp.MustCompile(`(?i)(\bCONCAT\b|\bGROUP_CONCAT\b)`),
	regexp.MustCompile(`(?i)(\bINFORMATION_SCHEMA\b)`),
	regexp.MustCompile(`(?i)(\bpg_catalog\b)`),
	regexp.MustCompile(`(?i)(\bsys\b)`),
}

var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[^>]*>`),
	regexp.MustCompile(`(?i)<object[^>]*>`),
	regexp.MustCompile(`(?i)<embed[^>]*>`),
	regexp.MustCompile(`(?i)<link[^>]*>`),
	regexp.MustCompile(`(?i)<meta[^>]*>`),
	regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)expression\s*\(`),
	regexp.MustCompile(`(?i)alert\s*\(`),
	regexp.MustCompile(`(?i)confirm\s*\(`),
	regexp.MustCompile(`(?i)prompt\s*\(`),
	regexp.MustCompile(`(?i)document\.cookie`),
	regexp.MustCompile(`(?i)document\.write`),
	regexp.MustCompile(`(?i)window\.location`),
	regexp.MustCompile(`(?i)<img[^>]*onerror`),
	regexp.MustCompile(`(?i)<svg[^>]*onload`),
	regexp.MustCompile(`(?i)<body[^>]*onload`),
}

// Sensitive absolute paths (/etc/passwd and friends) belong to the path
// traversal family only, so a traversal probe classifies as path_traversal
// even though the command family is checked first.
var commandPatterns = []*regexp.Regexp{
	regexp.MustCompile("[;&|`$()]"),
	regexp.MustCompile(`\$\([^)]*\)`),
	regexp.MustCompile(`\$\{[^}]*\}`),
	regexp.MustCompile(`\|\s*\w+`),
	regexp.MustCompile(`&&\s*\w+`),
	regexp.MustCompile(`\|\|\s*\w+`),
	regexp.MustCompile(`(?i)\bexec\s*\(`),
	regexp.MustCompile(`(?i)\bsystem\s*\(`),
	regexp.MustCompile(`(?i)\bshell_exec\s*\(`),
	regexp.MustCompile(`(?i)\bpassthru\s*\(`),
	regexp.MustCompile(`(?i)\bproc_open\s*\(`),
	regexp.MustCompile(`(?i)\bpopen\s*\(`),
	regexp.MustCompile(`(?i)\bpcntl_exec\s*\(`),
	regexp.MustCompile(`(?i)\bcmd\s*/c`),
	regexp.MustCompile(`(?i)\bbash\s+-c`),
	regexp.MustCompile(`(?i)\bsh\s+-c`),
}

var pathTraversalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.\./`),
	regexp.MustCompile(`\.\.\\`),
	regexp.MustCompile(`(?i)\.\.%2F`),
	regexp.MustCompile(`(?i)\.\.%5C`),
	regexp.MustCompile(`(?i)%2E%2E%2F`),
	regexp.MustCompile(`(?i)%2E%2E%5C`),
	regexp.MustCompile(`(?i)/etc/passwd`),
	regexp.MustCompile(`(?i)/etc/shadow`),
	regexp.MustCompile(`(?i)/proc/self`),
	regexp.MustCompile(`(?i)/var/log`),
	regexp.MustCompile(`(?i)/root`),
	regexp.MustCompile(`(?i)C:\\Windows`),
	regexp.MustCompile(`(?i)C:\\System32`),
}

var families = []struct {
	category Category
	patterns []*regexp.Regexp
}{
	{CategorySQL, sqlPatterns},
	{CategoryXSS, xssPatterns},
	{CategoryCommand, commandPatterns},
	{CategoryPathTraversal, pathTraversalPatterns},
}

// Scan checks payload against every family in fixed order (SQL, XSS, command,
// path traversal) and returns the first match, or nil for a clean payload.
// The ordering matters when a payload trips several families; callers get a
// stable classification.
func Scan(payload string) *Match {
	if payload == "" {
		return nil
	}
	for _, f := range families {
		for _, p := range f.patterns {
			if p.MatchString(payload) {
				return &Match{Category: f.category, Pattern: p.String()}
			}
		}
	}
	return nil
}

// ScanSQL checks only the SQL injection family.
func ScanSQL(payload string) *Match { return scanFamily(payload, CategorySQL, sqlPatterns) }

// ScanXSS checks only the cross-site scripting family.
func ScanXSS(payload string) *Match { return scanFamily(payload, CategoryXSS, xssPatterns) }

// ScanCommand checks only the command injection family.
func ScanCommand(payload string) *Match { return scanFamily(payload, CategoryCommand, commandPatterns) }

// ScanPathTraversal checks only the path traversal family.
func ScanPathTraversal(payload string) *Match {
	return scanFamily(payload, CategoryPathTraversal, pathTraversalPatterns)
}

func scanFamily(payload string, cat Category, patterns []*regexp.Regexp) *Match {
	if payload == "" {
		return nil
	}
	for _, p := range patterns {
		if p.MatchString(payload) {
			return &Match{Category: cat, Pattern: p.String()}
		}
	}
	return nil
}
