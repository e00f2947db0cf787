package password

import (
	"strings"
	"unicode"
)

// Policy is the strength policy applied to new passwords. A zero Policy
// accepts everything; callers normally use the engine defaults.
type Policy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSymbol    bool
	RejectCommon     bool
}

// Check evaluates candidate against the policy and returns every violated
// rule, not just the first, so callers can present the full list at once.
// An empty slice means the password is acceptable.
func (p Policy) Check(candidate string) []string {
	var violations []string

	if p.MinLength > 0 && len(candidate) < p.MinLength {
		violations = append(violations, "too short")
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	if p.RequireUppercase && !hasUpper {
		violations = append(violations, "missing uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		violations = append(violations, "missing lowercase letter")
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, "missing digit")
	}
	if p.RequireSymbol && !hasSymbol {
		violations = append(violations, "missing symbol")
	}

	if p.RejectCommon && isCommon(candidate) {
		violations = append(violations, "too common")
	}

	return violations
}

func isCommon(candidate string) bool {
	_, ok := commonPasswords[strings.ToLower(candidate)]
	return ok
}
