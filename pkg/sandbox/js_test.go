package sandbox

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/resolve"
	"github.com/ormasoftchile/arcanine/pkg/scope"
)

func newContext(t *testing.T, stage Stage) *Context {
	t.Helper()
	vars, err := scope.Build([]scope.Table{
		{Level: scope.Environment, Vars: map[string]string{"host": "api.example.com"}},
		{Level: scope.Collection, Vars: map[string]string{"baseUrl": "https://{{host}}", "team": "core"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	sc := &Context{
		Stage: stage,
		Vars:  vars,
		Request: &model.Request{
			Name:    "list users",
			Method:  model.MethodGet,
			URL:     "https://api.example.com/users",
			Headers: model.Headers{{Key: "Accept", Value: "application/json"}},
		},
		NewUUID: func() string { return "00000000-0000-4000-8000-000000000000" },
	}
	if stage != StagePreRequest {
		sc.Response = &model.Response{
			Status:     200,
			StatusText: "OK",
			Headers:    model.Headers{{Key: "Content-Type", Value: "application/json"}},
			Body:       `{"users":[{"id":1},{"id":2}]}`,
			Time:       42 * time.Millisecond,
			Size:       29,
		}
	}
	return sc
}

func run(t *testing.T, sc *Context, src string) StageResult {
	t.Helper()
	return NewJS().Run(context.Background(), Script{Origin: "test-script", Source: src}, sc, Budget{Timeout: 2 * time.Second})
}

func TestJS_EnvRoundTrip(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	res := run(t, sc, `
		env.set("token", "abc");
		console.log(env.get("token"), env.get("baseUrl"), env.get("nope"));
		env.set("n", 42);
		env.set("obj", {a: 1});
	`)
	if res.Error != nil {
		t.Fatalf("unexpected error: %v", res.Error)
	}
	if len(res.Console) != 1 || res.Console[0].Text != "abc https://api.example.com undefined" {
		t.Errorf("console = %+v", res.Console)
	}
	rt := sc.Vars.Runtime()
	if rt["token"] != "abc" || rt["n"] != "42" || rt["obj"] != `{"a":1}` {
		t.Errorf("runtime = %v", rt)
	}
}

func TestJS_EnvDelete(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	_ = sc.Vars.Set("tmp", "1")
	res := run(t, sc, `env.delete("tmp"); assert(env.get("tmp") === undefined)`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if _, ok := sc.Vars.Get("tmp"); ok {
		t.Error("tmp still present")
	}
}

func TestJS_CollectionWrites(t *testing.T) {
	sc := newContext(t, StagePostResponse)
	res := run(t, sc, `
		collection.set("lastId", response.json().users[1].id);
		collection.delete("team");
		console.log(collection.get("lastId"), collection.get("team"));
	`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if res.Console[0].Text != "2 undefined" {
		t.Errorf("console = %q", res.Console[0].Text)
	}
	ch := sc.Vars.Changes()
	if ch.CollectionSet["lastId"] != "2" || len(ch.CollectionDeleted) != 1 {
		t.Errorf("changes = %+v", ch)
	}
}

func TestJS_RequestMutablePreRequest(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	res := run(t, sc, `
		request.method = "post";
		request.url = request.url + "?page=2";
		request.body = {name: "x"};
		request.headers.set("X-Request-Id", crypto.randomUUID());
		request.headers.delete("accept");
		const names = [];
		for (const [k, v] of request.headers) { names.push(k); }
		console.log(names.join(","), request.headers.has("x-request-id"));
	`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	r := sc.Request
	if r.Method != model.MethodPost || r.URL != "https://api.example.com/users?page=2" || r.Body != `{"name":"x"}` {
		t.Errorf("request = %+v", r)
	}
	if v, _ := r.Headers.Get("X-Request-Id"); v != "00000000-0000-4000-8000-000000000000" {
		t.Errorf("X-Request-Id = %q", v)
	}
	if res.Console[0].Text != "X-Request-Id true" {
		t.Errorf("console = %q", res.Console[0].Text)
	}
}

func TestJS_RequestReadOnlyAfterSend(t *testing.T) {
	for _, src := range []string{
		`request.url = "http://other"`,
		`request.headers.set("A", "b")`,
		`request.body = "x"`,
	} {
		sc := newContext(t, StagePostResponse)
		res := run(t, sc, src)
		if res.Error == nil || res.Error.Kind != KindScriptError {
			t.Errorf("%s: error = %v, want script error", src, res.Error)
			continue
		}
		if !strings.Contains(res.Error.Message, "read-only") {
			t.Errorf("%s: message = %q", src, res.Error.Message)
		}
		if sc.Request.URL != "https://api.example.com/users" || sc.Request.Body != "" {
			t.Errorf("%s: request mutated: %+v", src, sc.Request)
		}
	}
}

func TestJS_ResponseSurface(t *testing.T) {
	sc := newContext(t, StageTest)
	res := run(t, sc, `
		assert(response.status === 200, "status is 200");
		assert(response.statusText === "OK", "status text");
		assert(response.headers.get("content-type") === "application/json", "content type");
		assert(response.time === 42, "time");
		assert(response.size === 29, "size");
		assert(response.text() === response.body, "text");
		assert(response.json().users.length === 2, "json");
	`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if len(res.Tests) != 7 || res.Passed() != 7 {
		t.Errorf("tests = %+v", res.Tests)
	}
}

func TestJS_ResponseAbsentPreRequest(t *testing.T) {
	res := run(t, newContext(t, StagePreRequest), `console.log(typeof response)`)
	if res.Error != nil || res.Console[0].Text != "undefined" {
		t.Errorf("res = %+v", res)
	}
}

func TestJS_JSONParseErrorCatchable(t *testing.T) {
	sc := newContext(t, StageTest)
	sc.Response.Body = "<html>"
	res := run(t, sc, `
		let caught = false;
		try { response.json(); } catch (e) { caught = true; console.log(e.message); }
		assert(caught, "caught");
	`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if !strings.Contains(res.Console[0].Text, "not valid JSON") {
		t.Errorf("console = %q", res.Console[0].Text)
	}

	res = run(t, sc, `response.json()`)
	if res.Error == nil || !strings.Contains(res.Error.Message, "not valid JSON") {
		t.Errorf("uncaught parse error = %v", res.Error)
	}
}

func TestJS_AssertOutcomes(t *testing.T) {
	res := run(t, newContext(t, StageTest), `assert(1 === 1); assert(false, "must fail"); assert(0)`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	want := []TestOutcome{
		{Name: "assertion 1", Passed: true, Script: "test-script"},
		{Name: "must fail", Passed: false, Message: "expected truthy value, got false", Script: "test-script"},
		{Name: "assertion 3", Passed: false, Message: "expected truthy value, got 0", Script: "test-script"},
	}
	if len(res.Tests) != len(want) {
		t.Fatalf("tests = %+v", res.Tests)
	}
	for i := range want {
		if res.Tests[i] != want[i] {
			t.Errorf("tests[%d] = %+v, want %+v", i, res.Tests[i], want[i])
		}
	}
}

func TestJS_AssertDiscardedOutsideTestStage(t *testing.T) {
	res := run(t, newContext(t, StagePostResponse), `console.log(assert(false, "x"))`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if len(res.Tests) != 0 {
		t.Errorf("tests = %+v, want none outside test stage", res.Tests)
	}
	if res.Console[0].Text != "false" {
		t.Errorf("assert should still evaluate, console = %q", res.Console[0].Text)
	}
}

func TestJS_ConsoleLevelsAndCap(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	res := NewJS().Run(context.Background(), Script{Origin: "s", Source: `
		console.warn("w", null, [1, "a"]);
		console.error(new Error("bad"));
		for (let i = 0; i < 10; i++) console.log(i);
	`}, sc, Budget{Timeout: time.Second, MaxConsoleLines: 4})
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if len(res.Console) != 4 {
		t.Fatalf("len(console) = %d, want cap of 4", len(res.Console))
	}
	if res.Console[0] != (ConsoleEntry{Level: ConsoleWarn, Text: `w null [1,"a"]`, Script: "s"}) {
		t.Errorf("console[0] = %+v", res.Console[0])
	}
	if res.Console[1].Level != ConsoleError || res.Console[1].Text != "Error: bad" {
		t.Errorf("console[1] = %+v", res.Console[1])
	}
	if res.Console[3].Text != "1" {
		t.Errorf("console[3] = %+v", res.Console[3])
	}
}

func TestJS_ThrowIsScriptError(t *testing.T) {
	res := run(t, newContext(t, StagePreRequest), `console.log("before"); throw new Error("boom"); console.log("after")`)
	if res.Error == nil {
		t.Fatal("expected error")
	}
	if res.Error.Kind != KindScriptError || res.Error.Message != "Error: boom" || res.Error.Script != "test-script" {
		t.Errorf("error = %+v", res.Error)
	}
	if !errors.Is(res.Error, ErrScript) {
		t.Error("errors.Is(ErrScript) = false")
	}
	if len(res.Console) != 1 {
		t.Errorf("console captured before throw should survive: %+v", res.Console)
	}
}

func TestJS_SyntaxError(t *testing.T) {
	res := run(t, newContext(t, StagePreRequest), `let = ;`)
	if res.Error == nil || res.Error.Kind != KindScriptError || !strings.HasPrefix(res.Error.Message, "SyntaxError") {
		t.Errorf("error = %+v", res.Error)
	}
}

func TestJS_TimeoutStopsInfiniteLoop(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	start := time.Now()
	res := NewJS().Run(context.Background(), Script{Origin: "loop", Source: `while (true) {}`}, sc, Budget{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)
	if res.Error == nil || res.Error.Kind != KindTimeout {
		t.Fatalf("error = %+v, want timeout", res.Error)
	}
	if !errors.Is(res.Error, ErrTimeout) {
		t.Error("errors.Is(ErrTimeout) = false")
	}
	if elapsed > 2*time.Second {
		t.Errorf("took %v, want close to 100ms", elapsed)
	}
}

func TestJS_SelfReferencingFanOutStaysBounded(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	src := `env.set("a", "` + strings.Repeat("{{a}}", 6) + `"); env.set("n", env.get("a").length);`
	start := time.Now()
	res := NewJS().Run(context.Background(), Script{Origin: "fan", Source: src}, sc, Budget{Timeout: 100 * time.Millisecond})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("took %v, want close to 100ms", elapsed)
	}
	if res.Error != nil {
		if res.Error.Kind != KindTimeout {
			t.Fatalf("error = %+v", res.Error)
		}
		return
	}
	n, err := strconv.Atoi(sc.Vars.Runtime()["n"])
	if err != nil || n == 0 || n > resolve.MaxOutput {
		t.Errorf("expanded length = %d (%v), want 1..%d", n, err, resolve.MaxOutput)
	}
}

func TestJS_CatchCannotSwallowTimeout(t *testing.T) {
	src := `while (true) { try { while (true) {} } catch (e) {} }`
	res := NewJS().Run(context.Background(), Script{Origin: "s", Source: src}, newContext(t, StagePreRequest), Budget{Timeout: 100 * time.Millisecond})
	if res.Error == nil || res.Error.Kind != KindTimeout {
		t.Fatalf("error = %+v, want timeout", res.Error)
	}
}

func TestJS_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	res := NewJS().Run(ctx, Script{Origin: "s", Source: `while (true) {}`}, newContext(t, StagePreRequest), Budget{Timeout: 10 * time.Second})
	if res.Error == nil || res.Error.Kind != KindCancelled {
		t.Fatalf("error = %+v, want cancelled", res.Error)
	}

	res = NewJS().Run(ctx, Script{Origin: "s", Source: `env.set("x", "1")`}, newContext(t, StagePreRequest), Budget{})
	if res.Error == nil || res.Error.Kind != KindCancelled {
		t.Errorf("already-cancelled ctx: error = %+v", res.Error)
	}
}

func TestJS_RecursionBounded(t *testing.T) {
	res := run(t, newContext(t, StagePreRequest), `function f() { return f(); } f();`)
	if res.Error == nil || res.Error.Kind != KindScriptError {
		t.Errorf("error = %+v, want script error from stack overflow", res.Error)
	}
}

func TestJS_NoAmbientCapabilities(t *testing.T) {
	res := run(t, newContext(t, StagePreRequest), `
		console.log(typeof require, typeof process, typeof fetch, typeof XMLHttpRequest, typeof setTimeout);
	`)
	if res.Error != nil {
		t.Fatal(res.Error)
	}
	if res.Console[0].Text != "undefined undefined undefined undefined undefined" {
		t.Errorf("ambient globals visible: %q", res.Console[0].Text)
	}
}

func TestJS_IsolationBetweenRuns(t *testing.T) {
	sc := newContext(t, StagePreRequest)
	run(t, sc, `globalThis.leak = 1;`)
	res := run(t, sc, `console.log(typeof leak)`)
	if res.Console[0].Text != "undefined" {
		t.Errorf("global leaked between runs: %q", res.Console[0].Text)
	}
}

func TestCheckSyntax(t *testing.T) {
	if err := CheckSyntax("ok", `env.set("a", 1)`); err != nil {
		t.Errorf("valid script: %v", err)
	}
	err := CheckSyntax("bad", `if (`)
	if err == nil || !errors.Is(err, ErrScript) {
		t.Errorf("invalid script: %v", err)
	}
}
