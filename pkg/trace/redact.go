package trace

import "regexp"

// Rule is a pattern redaction as written in an environment document.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern" jsonschema:"required"`
	Replace string `yaml:"replace,omitempty" json:"replace,omitempty"`
}

// Redaction is a pre-compiled Rule.
type Redaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileRules compiles redaction rules. An empty Replace masks with
// Redacted.
func CompileRules(rules []Rule) ([]*Redaction, error) {
	var compiled []*Redaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		replace := r.Replace
		if replace == "" {
			replace = Redacted
		}
		compiled = append(compiled, &Redaction{Pattern: re, Replace: replace})
	}
	return compiled, nil
}

// RedactOutput applies all compiled redaction rules to the given output.
func RedactOutput(output string, rules []*Redaction) string {
	result := output
	for _, r := range rules {
		result = r.Pattern.ReplaceAllString(result, r.Replace)
	}
	return result
}
