package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/sandbox"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

func newConsole(t *testing.T, opts Options) (*Console, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts.Output = &buf
	c, err := New([]scope.Table{
		{Level: scope.Secrets, Vars: map[string]string{"apiToken": "s3cret"}},
		{Level: scope.Environment, Vars: map[string]string{"baseUrl": "https://api.example.com", "user": "ann"}},
		{Level: scope.Collection, Vars: map[string]string{"page": "1"}},
	}, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c, &buf
}

// TestConsoleHelp verifies help output lists all commands.
func TestConsoleHelp(t *testing.T) {
	c, buf := newConsole(t, Options{})
	c.Handle(context.Background(), ":help")
	for _, cmd := range commands {
		if !strings.Contains(buf.String(), cmd) {
			t.Errorf("help output missing command %q", cmd)
		}
	}
}

// TestConsoleStatePersists verifies a runtime write is visible to the
// next line.
func TestConsoleStatePersists(t *testing.T) {
	c, buf := newConsole(t, Options{})
	ctx := context.Background()
	c.Handle(ctx, `env.set("greeting", "hi " + env.get("user"))`)
	c.Handle(ctx, `console.log(env.get("greeting"))`)
	if !strings.Contains(buf.String(), "hi ann\n") {
		t.Errorf("output = %q", buf.String())
	}
	if v, _ := c.Chain().Get("greeting"); v != "hi ann" {
		t.Errorf("greeting = %q", v)
	}
}

func TestConsoleVars(t *testing.T) {
	c, buf := newConsole(t, Options{})
	c.Handle(context.Background(), ":vars")
	out := buf.String()
	if !strings.Contains(out, `baseUrl = "https://api.example.com"`) {
		t.Errorf("vars missing baseUrl: %s", out)
	}
	if strings.Contains(out, "s3cret") || !strings.Contains(out, `apiToken = "********"`) {
		t.Errorf("secret not masked: %s", out)
	}

	buf.Reset()
	c.Handle(context.Background(), ":vars collection")
	if !strings.Contains(buf.String(), `page = "1"`) || strings.Contains(buf.String(), "baseUrl") {
		t.Errorf("collection level = %s", buf.String())
	}

	buf.Reset()
	c.Handle(context.Background(), ":vars nowhere")
	if !strings.Contains(buf.String(), "unknown scope level") {
		t.Errorf("bad level = %s", buf.String())
	}
}

func TestConsoleChanges(t *testing.T) {
	c, buf := newConsole(t, Options{})
	ctx := context.Background()
	c.Handle(ctx, ":changes")
	if !strings.Contains(buf.String(), "No changes.") {
		t.Errorf("got %q", buf.String())
	}
	buf.Reset()
	c.Handle(ctx, `env.set("a", "1"); collection.set("page", "2"); collection.delete("gone")`)
	c.Handle(ctx, ":changes")
	out := buf.String()
	for _, want := range []string{`runtime    a = "1"`, `collection page = "2"`, "collection gone deleted"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
}

func TestConsoleResolve(t *testing.T) {
	c, buf := newConsole(t, Options{})
	c.Handle(context.Background(), ":resolve {{baseUrl}}/users?page={{page}}&x={{missing}}")
	out := buf.String()
	if !strings.Contains(out, "https://api.example.com/users?page=1&x={{missing}}") {
		t.Errorf("resolve output = %q", out)
	}
	if !strings.Contains(out, "unresolved: missing") {
		t.Errorf("unresolved not listed: %q", out)
	}
}

func TestConsoleStage(t *testing.T) {
	c, buf := newConsole(t, Options{})
	ctx := context.Background()
	if c.prompt() != "arcanine[pre-request]> " {
		t.Errorf("prompt = %q", c.prompt())
	}
	c.Handle(ctx, ":stage test")
	res := c.Eval(ctx, `assert(1 + 1 === 2, "math works")`)
	if len(res.Tests) != 1 || !res.Tests[0].Passed {
		t.Errorf("tests = %+v", res.Tests)
	}
	if !strings.Contains(buf.String(), "✓ math works") {
		t.Errorf("output = %q", buf.String())
	}
	buf.Reset()
	c.Handle(ctx, ":stage sideways")
	if !strings.Contains(buf.String(), "Unknown stage") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConsoleRequestResponse(t *testing.T) {
	req := model.NewRequest("list", "https://api.example.com/pets")
	resp := &model.Response{Status: 200, Body: `{"n": 3}`}
	c, buf := newConsole(t, Options{Request: req, Response: resp})
	if c.stage != sandbox.StagePostResponse {
		t.Errorf("stage = %s", c.stage)
	}
	c.Handle(context.Background(), `console.log(request.url, response.json().n)`)
	if !strings.Contains(buf.String(), "https://api.example.com/pets 3") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConsoleScriptError(t *testing.T) {
	c, buf := newConsole(t, Options{})
	res := c.Eval(context.Background(), `throw new Error("boom")`)
	if res.Error == nil || res.Error.Kind != sandbox.KindScriptError {
		t.Fatalf("error = %+v", res.Error)
	}
	if !strings.Contains(buf.String(), "Error: ") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestConsoleQuitAndUnknown(t *testing.T) {
	c, buf := newConsole(t, Options{})
	ctx := context.Background()
	if c.Handle(ctx, ":nope") {
		t.Error(":nope must not quit")
	}
	if !strings.Contains(buf.String(), "Unknown command") {
		t.Errorf("output = %q", buf.String())
	}
	if !c.Handle(ctx, ":quit") {
		t.Error(":quit must end the session")
	}
	if c.Handle(ctx, "   ") {
		t.Error("blank line must not quit")
	}
}
