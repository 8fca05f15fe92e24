package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/arcanine/pkg/assertions"
	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "folders[0].requests[1].url")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether any entry has error severity.
func HasErrors(errs []*ValidationError) bool {
	return slices.ContainsFunc(errs, func(e *ValidationError) bool { return e.Severity == "error" })
}

// ValidateCollectionFile performs the full 3-phase validation pipeline on a
// collection file.
// Phase 1: Structural (strict YAML decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateCollectionFile(path string) (*Collection, []*ValidationError) {
	c, err := LoadCollectionFile(path)
	if err != nil {
		return nil, []*ValidationError{structural(err)}
	}
	errs := validateSemantic(KindCollection, c)
	errs = append(errs, ValidateCollection(c)...)
	return c, errs
}

// ValidateEnvironmentFile runs the 3-phase pipeline on an environment file.
func ValidateEnvironmentFile(path string) (*Environment, []*ValidationError) {
	env, err := LoadEnvironmentFile(path)
	if err != nil {
		return nil, []*ValidationError{structural(err)}
	}
	errs := validateSemantic(KindEnvironment, env)
	errs = append(errs, ValidateEnvironment(env)...)
	return env, errs
}

// ValidateGlobalsFile runs the 3-phase pipeline on a globals file.
func ValidateGlobalsFile(path string) (*Globals, []*ValidationError) {
	g, err := LoadGlobalsFile(path)
	if err != nil {
		return nil, []*ValidationError{structural(err)}
	}
	errs := validateSemantic(KindGlobals, g)
	errs = append(errs, ValidateGlobals(g)...)
	return g, errs
}

// DetectKind guesses a document kind from its file name: "*.env.yaml" is
// an environment, "globals*.yaml" globals, anything else a collection.
func DetectKind(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, ".env."):
		return KindEnvironment
	case strings.HasPrefix(base, "globals") || strings.Contains(base, ".globals."):
		return KindGlobals
	}
	return KindCollection
}

// ValidateFile runs the validation pipeline for kind ("" detects it from
// the file name). The parsed document is nil when decoding failed.
func ValidateFile(kind, path string) (any, []*ValidationError) {
	if kind == "" {
		kind = DetectKind(path)
	}
	switch kind {
	case KindCollection:
		c, errs := ValidateCollectionFile(path)
		if c == nil {
			return nil, errs
		}
		return c, errs
	case KindEnvironment:
		env, errs := ValidateEnvironmentFile(path)
		if env == nil {
			return nil, errs
		}
		return env, errs
	case KindGlobals:
		g, errs := ValidateGlobalsFile(path)
		if g == nil {
			return nil, errs
		}
		return g, errs
	}
	return nil, []*ValidationError{{Phase: "structural", Message: fmt.Sprintf("unknown document kind %q", kind), Severity: "error"}}
}

func structural(err error) *ValidationError {
	return &ValidationError{Phase: "structural", Message: err.Error(), Severity: "error"}
}

func semantic(format string, args ...any) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf(format, args...), Severity: "error"}}
}

// validateSemantic validates doc against the JSON Schema of kind.
func validateSemantic(kind string, doc any) []*ValidationError {
	data, err := json.Marshal(doc)
	if err != nil {
		return semantic("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema(kind)
	if err != nil {
		return semantic("generate schema: %v", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return semantic("unmarshal schema: %v", err)
	}

	c := sjsonschema.NewCompiler()
	url := kind + "-v1.json"
	if err := c.AddResource(url, schemaDoc); err != nil {
		return semantic("add schema resource: %v", err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return semantic("compile schema: %v", err)
	}

	inst, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return semantic("unmarshal document: %v", err)
	}
	if err := sch.Validate(inst); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semantic("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// domain accumulates phase 3 findings.
type domain struct {
	errs []*ValidationError
}

func (d *domain) add(severity, path, format string, args ...any) {
	d.errs = append(d.errs, &ValidationError{
		Phase:    "domain",
		Path:     path,
		Message:  fmt.Sprintf(format, args...),
		Severity: severity,
	})
}

func (d *domain) apiVersion(v string) {
	if v != APIVersion {
		d.add("error", "apiVersion", "unrecognized apiVersion %q, expected %q", v, APIVersion)
	}
}

func (d *domain) variables(path string, vars map[string]string) {
	for name := range vars {
		if strings.TrimSpace(name) == "" {
			d.add("error", path, "variable name must not be empty")
		} else if strings.ContainsAny(name, "{}") {
			d.add("error", path+"."+name, "variable name must not contain braces")
		}
	}
}

func (d *domain) scripts(path string, s *Scripts) {
	if s == nil {
		return
	}
	for field, src := range map[string]string{
		"preRequest":   s.PreRequest,
		"postResponse": s.PostResponse,
		"test":         s.Test,
	} {
		if strings.TrimSpace(src) == "" {
			continue
		}
		if err := sandbox.CheckSyntax(path, src); err != nil {
			d.add("error", path+".scripts."+field, "%v", err)
		}
	}
}

// ValidateCollection performs Phase 3 domain-level validation.
// Returns a slice of errors; empty means valid.
func ValidateCollection(c *Collection) []*ValidationError {
	d := &domain{}
	d.apiVersion(c.APIVersion)
	d.variables("variables", c.Variables)
	d.scripts("collection", c.Scripts)
	d.tree("", c.Folders, c.Requests)
	return d.errs
}

func (d *domain) tree(prefix string, folders []Folder, requests []RequestDoc) {
	seen := map[string]bool{}
	for i, f := range folders {
		path := fmt.Sprintf("%sfolders[%d]", prefix, i)
		switch {
		case strings.TrimSpace(f.Name) == "":
			d.add("error", path+".name", "folder name must not be empty")
		case strings.Contains(f.Name, "/"):
			d.add("error", path+".name", "folder name %q must not contain '/'", f.Name)
		case seen[f.Name]:
			d.add("error", path+".name", "duplicate folder name %q", f.Name)
		}
		seen[f.Name] = true
		d.variables(path+".variables", f.Variables)
		d.scripts(path, f.Scripts)
		d.tree(path+".", f.Folders, f.Requests)
	}

	seen = map[string]bool{}
	for i, r := range requests {
		path := fmt.Sprintf("%srequests[%d]", prefix, i)
		switch {
		case strings.TrimSpace(r.Name) == "":
			d.add("error", path+".name", "request name must not be empty")
		case strings.Contains(r.Name, "/"):
			d.add("error", path+".name", "request name %q must not contain '/'", r.Name)
		case seen[r.Name]:
			d.add("error", path+".name", "duplicate request name %q", r.Name)
		}
		seen[r.Name] = true
		if _, err := model.ParseMethod(r.Method); err != nil {
			d.add("error", path+".method", "%v", err)
		}
		if strings.TrimSpace(r.URL) == "" {
			d.add("error", path+".url", "url must not be empty")
		}
		for j, h := range r.Headers {
			if strings.TrimSpace(h.Key) == "" {
				d.add("error", fmt.Sprintf("%s.headers[%d].key", path, j), "header name must not be empty")
			}
		}
		d.variables(path+".variables", r.Variables)
		d.scripts(path, r.Scripts)
		for j, a := range r.Assertions {
			if err := assertions.Compile(a); err != nil {
				d.add("error", fmt.Sprintf("%s.assertions[%d]", path, j), "%v", err)
			}
		}
	}
}

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateEnvironment performs Phase 3 validation of an environment.
func ValidateEnvironment(env *Environment) []*ValidationError {
	d := &domain{}
	d.apiVersion(env.APIVersion)
	d.variables("variables", env.Variables)
	seen := map[string]bool{}
	for i, name := range env.Secrets {
		path := fmt.Sprintf("secrets[%d]", i)
		switch {
		case !envName.MatchString(name):
			d.add("error", path, "secret %q is not a valid environment variable name", name)
		case seen[name]:
			d.add("error", path, "duplicate secret %q", name)
		}
		seen[name] = true
		if _, ok := env.Variables[name]; ok {
			d.add("warning", path, "secret %q is shadowed by a plain variable of the same name", name)
		}
	}
	if _, err := trace.CompileRules(env.Redact); err != nil {
		d.add("error", "redact", "invalid redaction pattern: %v", err)
	}
	return d.errs
}

// ValidateGlobals performs Phase 3 validation of a globals document.
func ValidateGlobals(g *Globals) []*ValidationError {
	d := &domain{}
	d.apiVersion(g.APIVersion)
	d.variables("variables", g.Variables)
	return d.errs
}
