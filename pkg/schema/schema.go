// Package schema defines the Go struct types for the collection,
// environment and globals YAML documents and provides strict YAML parsing.
package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/trace"
)

// APIVersion is the only document version understood.
const APIVersion = "arcanine/v1"

// Scripts holds one script body per stage.
type Scripts struct {
	PreRequest   string `yaml:"preRequest,omitempty"   json:"preRequest,omitempty"`
	PostResponse string `yaml:"postResponse,omitempty" json:"postResponse,omitempty"`
	Test         string `yaml:"test,omitempty"         json:"test,omitempty"`
}

// Collection is the top-level document: variables and scripts shared by
// every request, plus a tree of folders and requests.
type Collection struct {
	APIVersion  string            `yaml:"apiVersion"            json:"apiVersion"            jsonschema:"required,enum=arcanine/v1"`
	Name        string            `yaml:"name"                  json:"name"                  jsonschema:"required,minLength=1"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"   json:"variables,omitempty"`
	Scripts     *Scripts          `yaml:"scripts,omitempty"     json:"scripts,omitempty"`
	Folders     []Folder          `yaml:"folders,omitempty"     json:"folders,omitempty"`
	Requests    []RequestDoc      `yaml:"requests,omitempty"    json:"requests,omitempty"`
}

// Folder groups requests. Folders nest.
type Folder struct {
	Name        string            `yaml:"name"                  json:"name"                  jsonschema:"required,minLength=1"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"   json:"variables,omitempty"`
	Scripts     *Scripts          `yaml:"scripts,omitempty"     json:"scripts,omitempty"`
	Folders     []Folder          `yaml:"folders,omitempty"     json:"folders,omitempty"`
	Requests    []RequestDoc      `yaml:"requests,omitempty"    json:"requests,omitempty"`
}

// RequestDoc is a request as written in a collection.
type RequestDoc struct {
	Name        string            `yaml:"name"                  json:"name"                  jsonschema:"required,minLength=1"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Method      string            `yaml:"method,omitempty"      json:"method,omitempty"`
	URL         string            `yaml:"url"                   json:"url"                   jsonschema:"required,minLength=1"`
	Headers     []model.KeyValue  `yaml:"headers,omitempty"     json:"headers,omitempty"`
	Query       []model.KeyValue  `yaml:"query,omitempty"       json:"query,omitempty"`
	Body        string            `yaml:"body,omitempty"        json:"body,omitempty"`
	Variables   map[string]string `yaml:"variables,omitempty"   json:"variables,omitempty"`
	Scripts     *Scripts          `yaml:"scripts,omitempty"     json:"scripts,omitempty"`
	Assertions  []string          `yaml:"assertions,omitempty"  json:"assertions,omitempty"`
}

// Environment is a named variable set. Secrets lists the names of process
// environment variables that populate the Secrets scope level; their
// values never appear in documents.
type Environment struct {
	APIVersion string            `yaml:"apiVersion"          json:"apiVersion"          jsonschema:"required,enum=arcanine/v1"`
	Name       string            `yaml:"name"                json:"name"                jsonschema:"required,minLength=1"`
	Variables  map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
	Secrets    []string          `yaml:"secrets,omitempty"   json:"secrets,omitempty"`
	Redact     []trace.Rule      `yaml:"redact,omitempty"    json:"redact,omitempty"`
}

// Globals holds variables shared by every collection.
type Globals struct {
	APIVersion string            `yaml:"apiVersion"          json:"apiVersion"          jsonschema:"required,enum=arcanine/v1"`
	Variables  map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// LoadCollectionFile reads and strictly parses a collection document.
func LoadCollectionFile(path string) (*Collection, error) {
	return loadFile[Collection](path, "collection")
}

// LoadCollection parses a collection with strict unknown-field rejection.
func LoadCollection(r io.Reader) (*Collection, error) {
	return load[Collection](r, "collection")
}

// LoadEnvironmentFile reads and strictly parses an environment document.
func LoadEnvironmentFile(path string) (*Environment, error) {
	return loadFile[Environment](path, "environment")
}

// LoadEnvironment parses an environment with strict unknown-field rejection.
func LoadEnvironment(r io.Reader) (*Environment, error) {
	return load[Environment](r, "environment")
}

// LoadGlobalsFile reads and strictly parses a globals document.
func LoadGlobalsFile(path string) (*Globals, error) {
	return loadFile[Globals](path, "globals")
}

// LoadGlobals parses globals with strict unknown-field rejection.
func LoadGlobals(r io.Reader) (*Globals, error) {
	return load[Globals](r, "globals")
}

func loadFile[T any](path, kind string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}
	defer f.Close()
	return load[T](f, kind)
}

func load[T any](r io.Reader, kind string) (*T, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc T
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return &doc, nil
}

// Marshal encodes a document as YAML with two-space indentation.
func Marshal(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return buf.Bytes(), nil
}
