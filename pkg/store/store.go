// Package store persists the variable changes of finished runs back into
// the collection and environment documents they came from.
package store

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

// Store is the single writer for one collection file and, optionally, one
// environment file. Commits are serialized; the last commit wins.
type Store struct {
	mu sync.Mutex

	collectionPath  string
	environmentPath string
	collection      *schema.Collection
	environment     *schema.Environment
}

// New wraps already loaded documents. environmentPath may be empty, in which
// case runtime values are not persisted.
func New(collectionPath string, c *schema.Collection, environmentPath string, env *schema.Environment) *Store {
	return &Store{
		collectionPath:  collectionPath,
		environmentPath: environmentPath,
		collection:      c,
		environment:     env,
	}
}

// Open loads the documents at the given paths.
func Open(collectionPath, environmentPath string) (*Store, error) {
	c, err := schema.LoadCollectionFile(collectionPath)
	if err != nil {
		return nil, err
	}
	var env *schema.Environment
	if environmentPath != "" {
		if env, err = schema.LoadEnvironmentFile(environmentPath); err != nil {
			return nil, err
		}
	}
	return New(collectionPath, c, environmentPath, env), nil
}

// Collection returns a copy of the current collection variables.
func (s *Store) Collection() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.collection.Variables)
}

// Environment returns a copy of the current environment variables, or nil
// when no environment is attached.
func (s *Store) Environment() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.environment == nil {
		return nil
	}
	return maps.Clone(s.environment.Variables)
}

// Commit applies ch and rewrites the touched documents. Collection sets and
// deletes go to the collection; runtime values go to the environment.
func (s *Store) Commit(ch scope.Changes) error {
	if ch.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ch.CollectionSet) > 0 || len(ch.CollectionDeleted) > 0 {
		vars := maps.Clone(s.collection.Variables)
		if vars == nil {
			vars = make(map[string]string)
		}
		for _, name := range ch.CollectionDeleted {
			delete(vars, name)
		}
		maps.Copy(vars, ch.CollectionSet)

		next := *s.collection
		next.Variables = vars
		if err := writeDocument(s.collectionPath, &next); err != nil {
			return fmt.Errorf("commit collection: %w", err)
		}
		s.collection = &next
	}

	if len(ch.Runtime) > 0 && s.environment != nil && s.environmentPath != "" {
		vars := maps.Clone(s.environment.Variables)
		if vars == nil {
			vars = make(map[string]string)
		}
		maps.Copy(vars, ch.Runtime)

		next := *s.environment
		next.Variables = vars
		if err := writeDocument(s.environmentPath, &next); err != nil {
			return fmt.Errorf("commit environment: %w", err)
		}
		s.environment = &next
	}
	return nil
}

// CommitResult adapts Commit to pipeline.CommitFunc.
func (s *Store) CommitResult(r *pipeline.Result) error {
	return s.Commit(r.Changes)
}

// writeDocument replaces path atomically with the YAML form of doc.
func writeDocument(path string, doc any) error {
	data, err := schema.Marshal(doc)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
