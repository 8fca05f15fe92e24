package schema

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/scope"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

// ErrNotFound is returned when a request path does not address a request.
var ErrNotFound = errors.New("request not found")

// Sources are the loaded documents a run draws its scope levels from.
// Environment and Globals are optional.
type Sources struct {
	Collection  *Collection
	Environment *Environment
	Globals     *Globals

	// LookupEnv resolves secret names. Defaults to os.LookupEnv.
	LookupEnv func(name string) (string, bool)

	// Overrides are applied at the Runtime level (command-line --var).
	Overrides map[string]string
}

// LoadSources reads the collection and, when their paths are non-empty,
// the environment and globals documents.
func LoadSources(collectionPath, environmentPath, globalsPath string) (Sources, error) {
	var src Sources
	var err error
	if src.Collection, err = LoadCollectionFile(collectionPath); err != nil {
		return Sources{}, err
	}
	if environmentPath != "" {
		if src.Environment, err = LoadEnvironmentFile(environmentPath); err != nil {
			return Sources{}, err
		}
	}
	if globalsPath != "" {
		if src.Globals, err = LoadGlobalsFile(globalsPath); err != nil {
			return Sources{}, err
		}
	}
	return src, nil
}

// Redactions compiles the environment's redaction rules.
func (src Sources) Redactions() ([]*trace.Redaction, error) {
	if src.Environment == nil {
		return nil, nil
	}
	return trace.CompileRules(src.Environment.Redact)
}

// Located is a request together with the folders enclosing it, outermost
// first.
type Located struct {
	Path    string
	Folders []*Folder
	Request *RequestDoc
}

// Find resolves a "folder/sub/request" path. A path without slashes names
// a request at the collection root.
func (c *Collection) Find(path string) (*Located, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	folders, requests := c.Folders, c.Requests
	var chain []*Folder
	for _, name := range parts[:len(parts)-1] {
		var next *Folder
		for i := range folders {
			if folders[i].Name == name {
				next = &folders[i]
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("%w: folder %q in %q", ErrNotFound, name, path)
		}
		chain = append(chain, next)
		folders, requests = next.Folders, next.Requests
	}
	last := parts[len(parts)-1]
	for i := range requests {
		if requests[i].Name == last {
			return &Located{Path: strings.Join(parts, "/"), Folders: chain, Request: &requests[i]}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, path)
}

// Walk lists every request path in document order: a container's requests
// before its folders, depth first.
func (c *Collection) Walk() []string {
	var out []string
	var visit func(prefix string, folders []Folder, requests []RequestDoc)
	visit = func(prefix string, folders []Folder, requests []RequestDoc) {
		for _, r := range requests {
			out = append(out, prefix+r.Name)
		}
		for _, f := range folders {
			visit(prefix+f.Name+"/", f.Folders, f.Requests)
		}
	}
	visit("", c.Folders, c.Requests)
	return out
}

// WalkUnder lists request paths below prefix ("" for all).
func (c *Collection) WalkUnder(prefix string) []string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return c.Walk()
	}
	var out []string
	for _, p := range c.Walk() {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			out = append(out, p)
		}
	}
	return out
}

// Plan builds the pipeline job for the request at path.
func Plan(src Sources, path string) (*pipeline.Job, error) {
	if src.Collection == nil {
		return nil, fmt.Errorf("plan %q: no collection loaded", path)
	}
	loc, err := src.Collection.Find(path)
	if err != nil {
		return nil, err
	}
	req, err := buildRequest(loc.Request)
	if err != nil {
		return nil, fmt.Errorf("plan %q: %w", path, err)
	}
	return &pipeline.Job{
		Def: pipeline.RequestDef{
			Path:       loc.Path,
			Request:    req,
			Scripts:    collectScripts(src.Collection, loc),
			Assertions: append([]string(nil), loc.Request.Assertions...),
		},
		Levels: src.levels(loc),
	}, nil
}

// PlanAll plans every request under prefix, in document order.
func PlanAll(src Sources, prefix string) ([]pipeline.Job, error) {
	if src.Collection == nil {
		return nil, errors.New("plan: no collection loaded")
	}
	paths := src.Collection.WalkUnder(prefix)
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: nothing under %q", ErrNotFound, prefix)
	}
	jobs := make([]pipeline.Job, 0, len(paths))
	for _, p := range paths {
		job, err := Plan(src, p)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func buildRequest(doc *RequestDoc) (*model.Request, error) {
	method, err := model.ParseMethod(doc.Method)
	if err != nil {
		return nil, err
	}
	return &model.Request{
		Name:    doc.Name,
		Method:  method,
		URL:     doc.URL,
		Headers: model.Headers(doc.Headers).Clone(),
		Query:   append([]model.KeyValue(nil), doc.Query...),
		Body:    doc.Body,
	}, nil
}

// collectScripts gathers scripts outer-first: collection, each folder,
// then the request.
func collectScripts(c *Collection, loc *Located) pipeline.Scripts {
	var out pipeline.Scripts
	add := func(origin string, s *Scripts) {
		if s == nil {
			return
		}
		if s.PreRequest != "" {
			out.PreRequest = append(out.PreRequest, sandbox.Script{Origin: origin, Source: s.PreRequest})
		}
		if s.PostResponse != "" {
			out.PostResponse = append(out.PostResponse, sandbox.Script{Origin: origin, Source: s.PostResponse})
		}
		if s.Test != "" {
			out.Tests = append(out.Tests, sandbox.Script{Origin: origin, Source: s.Test})
		}
	}
	add("collection", c.Scripts)
	var names []string
	for _, f := range loc.Folders {
		names = append(names, f.Name)
		add("folder:"+strings.Join(names, "/"), f.Scripts)
	}
	add("request:"+loc.Request.Name, loc.Request.Scripts)
	return out
}

// levels produces the scope tables in ascending precedence. Nested folder
// variables merge into the single Folder level, innermost winning.
func (src Sources) levels(loc *Located) []scope.Table {
	out := src.sharedLevels()
	if len(loc.Folders) > 0 {
		folder := make(map[string]string)
		for _, f := range loc.Folders {
			maps.Copy(folder, f.Variables)
		}
		out = append(out, scope.Table{Level: scope.Folder, Vars: folder})
	}
	out = append(out, scope.Table{Level: scope.Request, Vars: loc.Request.Variables})
	return src.withOverrides(out)
}

// ScopeLevels returns the levels every request of the collection shares:
// global, secrets, environment and collection, plus the overrides at the
// runtime level.
func (src Sources) ScopeLevels() []scope.Table {
	return src.withOverrides(src.sharedLevels())
}

func (src Sources) sharedLevels() []scope.Table {
	var out []scope.Table
	if src.Globals != nil {
		out = append(out, scope.Table{Level: scope.Global, Vars: src.Globals.Variables})
	}
	if env := src.Environment; env != nil {
		lookup := src.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		secrets := make(map[string]string)
		for _, name := range env.Secrets {
			if v, ok := lookup(name); ok {
				secrets[name] = v
			}
		}
		out = append(out,
			scope.Table{Level: scope.Secrets, Vars: secrets},
			scope.Table{Level: scope.Environment, Vars: env.Variables},
		)
	}
	if src.Collection != nil {
		out = append(out, scope.Table{Level: scope.Collection, Vars: src.Collection.Variables})
	}
	return out
}

func (src Sources) withOverrides(levels []scope.Table) []scope.Table {
	if len(src.Overrides) > 0 {
		levels = append(levels, scope.Table{Level: scope.Runtime, Vars: src.Overrides})
	}
	return levels
}

// Apply returns src with ch folded into copies of the collection and
// environment documents, so later plans see the values an earlier run left
// behind. Runtime values land in the environment and are dropped without
// one. The documents src points at are not modified.
func (src Sources) Apply(ch scope.Changes) Sources {
	if c := src.Collection; c != nil && (len(ch.CollectionSet) > 0 || len(ch.CollectionDeleted) > 0) {
		vars := maps.Clone(c.Variables)
		if vars == nil {
			vars = make(map[string]string)
		}
		for _, name := range ch.CollectionDeleted {
			delete(vars, name)
		}
		maps.Copy(vars, ch.CollectionSet)
		next := *c
		next.Variables = vars
		src.Collection = &next
	}
	if env := src.Environment; env != nil && len(ch.Runtime) > 0 {
		vars := maps.Clone(env.Variables)
		if vars == nil {
			vars = make(map[string]string)
		}
		maps.Copy(vars, ch.Runtime)
		next := *env
		next.Variables = vars
		src.Environment = &next
	}
	return src
}
