package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Document kinds accepted by GenerateJSONSchema.
const (
	KindCollection  = "collection"
	KindEnvironment = "environment"
	KindGlobals     = "globals"
)

// Kinds lists the document kinds in a stable order.
var Kinds = []string{KindCollection, KindEnvironment, KindGlobals}

var schemaMeta = map[string]struct {
	doc         any
	title       string
	description string
}{
	KindCollection:  {&Collection{}, "Arcanine Collection v1", "Schema for arcanine collection YAML documents (Draft 2020-12)"},
	KindEnvironment: {&Environment{}, "Arcanine Environment v1", "Schema for arcanine environment YAML documents (Draft 2020-12)"},
	KindGlobals:     {&Globals{}, "Arcanine Globals v1", "Schema for arcanine globals YAML documents (Draft 2020-12)"},
}

// SchemaID is the $id of the schema for kind.
func SchemaID(kind string) string {
	return fmt.Sprintf("https://github.com/ormasoftchile/arcanine/schemas/%s-v1.json", kind)
}

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document for the
// given document kind using invopop/jsonschema.
func GenerateJSONSchema(kind string) ([]byte, error) {
	meta, ok := schemaMeta[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(meta.doc)
	s.ID = jsonschema.ID(SchemaID(kind))
	s.Title = meta.title
	s.Description = meta.description

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", kind, err)
	}
	return data, nil
}
