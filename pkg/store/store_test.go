package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/pipeline"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/schema"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

const collectionYAML = `apiVersion: arcanine/v1
name: demo
variables:
  keep: "1"
  drop: "2"
requests:
  - name: ping
    url: https://example.com/ping
`

const envYAML = `apiVersion: arcanine/v1
name: dev
variables:
  baseUrl: https://example.com
secrets:
  - API_TOKEN
`

func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cpath := filepath.Join(dir, "demo.collection.yaml")
	epath := filepath.Join(dir, "dev.env.yaml")
	if err := os.WriteFile(cpath, []byte(collectionYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(epath, []byte(envYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	return cpath, epath
}

func TestCommit(t *testing.T) {
	cpath, epath := writeFixtures(t)
	s, err := Open(cpath, epath)
	if err != nil {
		t.Fatal(err)
	}
	err = s.Commit(scope.Changes{
		Runtime:           map[string]string{"token": "abc"},
		CollectionSet:     map[string]string{"lastId": "42", "keep": "3"},
		CollectionDeleted: []string{"drop"},
	})
	if err != nil {
		t.Fatal(err)
	}

	c, err := schema.LoadCollectionFile(cpath)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"keep": "3", "lastId": "42"}
	if len(c.Variables) != len(want) {
		t.Errorf("collection vars = %v", c.Variables)
	}
	for k, v := range want {
		if c.Variables[k] != v {
			t.Errorf("%s = %q, want %q", k, c.Variables[k], v)
		}
	}
	if len(c.Requests) != 1 || c.Requests[0].Name != "ping" {
		t.Errorf("requests lost: %+v", c.Requests)
	}

	env, err := schema.LoadEnvironmentFile(epath)
	if err != nil {
		t.Fatal(err)
	}
	if env.Variables["token"] != "abc" || env.Variables["baseUrl"] != "https://example.com" {
		t.Errorf("env vars = %v", env.Variables)
	}
	if len(env.Secrets) != 1 {
		t.Errorf("secrets lost: %v", env.Secrets)
	}
	if got := s.Collection()["lastId"]; got != "42" {
		t.Errorf("in-memory collection not updated: %q", got)
	}

	entries, _ := os.ReadDir(filepath.Dir(cpath))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestCommit_EmptyDoesNotWrite(t *testing.T) {
	cpath, _ := writeFixtures(t)
	s, err := Open(cpath, "")
	if err != nil {
		t.Fatal(err)
	}
	before, _ := os.Stat(cpath)
	if err := s.Commit(scope.Changes{}); err != nil {
		t.Fatal(err)
	}
	after, _ := os.Stat(cpath)
	if !before.ModTime().Equal(after.ModTime()) {
		t.Error("empty commit rewrote the collection")
	}
}

func TestCommit_RuntimeWithoutEnvironment(t *testing.T) {
	cpath, _ := writeFixtures(t)
	s, err := Open(cpath, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Commit(scope.Changes{Runtime: map[string]string{"x": "1"}}); err != nil {
		t.Fatal(err)
	}
	if s.Environment() != nil {
		t.Error("no environment expected")
	}
}

func TestCommit_WriteFailureKeepsState(t *testing.T) {
	c := &schema.Collection{APIVersion: schema.APIVersion, Name: "c"}
	s := New(filepath.Join(t.TempDir(), "missing", "c.yaml"), c, "", nil)
	if err := s.Commit(scope.Changes{CollectionSet: map[string]string{"a": "1"}}); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
	if _, ok := s.Collection()["a"]; ok {
		t.Error("failed commit must not change the in-memory document")
	}
}

// TestRunAllCommits drives bulk runs whose scripts write collection
// variables and checks every commit lands.
func TestRunAllCommits(t *testing.T) {
	cpath, epath := writeFixtures(t)
	s, err := Open(cpath, epath)
	if err != nil {
		t.Fatal(err)
	}
	exec := pipeline.ExecutorFunc(func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return &model.Response{Status: 200, Body: "{}"}, nil
	})
	o, err := pipeline.New(pipeline.DefaultConfig(exec))
	if err != nil {
		t.Fatal(err)
	}

	var jobs []pipeline.Job
	for _, name := range []string{"a", "b", "c", "d"} {
		jobs = append(jobs, pipeline.Job{
			Def: pipeline.RequestDef{
				Request: model.NewRequest(name, "https://example.com/"+name),
				Scripts: pipeline.Scripts{PostResponse: []sandbox.Script{{
					Origin: "request:" + name,
					Source: `collection.set("seen_` + name + `", "yes");`,
				}}},
			},
			Levels: []scope.Table{{Level: scope.Collection, Vars: s.Collection()}},
		})
	}

	var mu sync.Mutex
	commits := 0
	results, err := o.RunAll(context.Background(), jobs, 3, func(r *pipeline.Result) error {
		mu.Lock()
		commits++
		mu.Unlock()
		return s.CommitResult(r)
	})
	if err != nil {
		t.Fatal(err)
	}
	if commits != len(jobs) || len(results) != len(jobs) {
		t.Fatalf("commits = %d, results = %d", commits, len(results))
	}
	c, err := schema.LoadCollectionFile(cpath)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a", "b", "c", "d"} {
		if c.Variables["seen_"+name] != "yes" {
			t.Errorf("seen_%s missing: %v", name, c.Variables)
		}
	}
}
