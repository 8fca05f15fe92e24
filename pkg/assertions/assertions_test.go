package assertions

import (
	"strings"
	"testing"
	"time"

	"github.com/ormasoftchile/arcanine/pkg/model"
)

func response() *model.Response {
	return &model.Response{
		Status:     201,
		StatusText: "Created",
		Headers: model.Headers{
			{Key: "Content-Type", Value: "application/json; charset=utf-8"},
			{Key: "X-Trace", Value: "abc"},
		},
		Body: `{"id": 7, "tags": ["a", "b"], "owner": {"name": "ana"}}`,
		Time: 120 * time.Millisecond,
		Size: 55,
	}
}

func TestEval(t *testing.T) {
	env := NewEnv(response(), map[string]string{"expectedId": "7"})
	tests := []struct {
		expr string
		want bool
	}{
		{`status == 201`, true},
		{`status >= 200 && status < 300`, true},
		{`statusText == "Created"`, true},
		{`headers["content-type"] startsWith "application/json"`, true},
		{`header("X-TRACE") == "abc"`, true},
		{`body contains "owner"`, true},
		{`body matches "\"id\":\\s*7"`, true},
		{`json.id == 7`, true},
		{`json.owner.name == "ana"`, true},
		{`len(json.tags) == 2`, true},
		{`jsonpath(body, "$.tags[1]") == "b"`, true},
		{`jsonpath(json, "$.owner.name") == "ana"`, true},
		{`string(json.id) == vars.expectedId`, true},
		{`time < 1000 && size == 55`, true},
		{`status == 200`, false},
	}
	for _, tt := range tests {
		got, err := Eval(tt.expr, env)
		if err != nil {
			t.Errorf("Eval(%s) error: %v", tt.expr, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Eval(%s) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestEval_Errors(t *testing.T) {
	env := NewEnv(response(), nil)
	for _, src := range []string{``, `status +`, `status`, `jsonpath(body, "$.missing") == 1`} {
		if _, err := Eval(src, env); err == nil {
			t.Errorf("Eval(%q) expected error", src)
		}
	}
}

func TestEvaluate_Outcomes(t *testing.T) {
	out := Evaluate([]string{" status == 201 ", "status == 500", "nope("}, NewEnv(response(), nil))
	if len(out) != 3 {
		t.Fatalf("got %d outcomes", len(out))
	}
	if !out[0].Passed || out[0].Name != "expr: status == 201" || out[0].Script != Origin {
		t.Errorf("out[0] = %+v", out[0])
	}
	if out[1].Passed || out[1].Message != "expression evaluated to false" {
		t.Errorf("out[1] = %+v", out[1])
	}
	if out[2].Passed || !strings.Contains(out[2].Message, "compile assertion") {
		t.Errorf("out[2] = %+v", out[2])
	}
}

func TestNewEnv_NonJSONBody(t *testing.T) {
	resp := response()
	resp.Body = "<html>"
	env := NewEnv(resp, nil)
	if env["json"] != nil {
		t.Errorf("json = %v, want nil", env["json"])
	}
	if ok, err := Eval(`json == nil && body startsWith "<"`, env); err != nil || !ok {
		t.Errorf("Eval = %v, %v", ok, err)
	}
}

func TestJSONPath(t *testing.T) {
	doc := `{"users": [{"id": 1}, {"id": 2, "roles": ["admin"]}], "count": 2}`
	tests := []struct {
		path string
		want any
		err  bool
	}{
		{"$.count", float64(2), false},
		{"$.users[1].id", float64(2), false},
		{"$.users.1.roles[0]", "admin", false},
		{"$.users[5]", nil, true},
		{"$.users.x", nil, true},
		{"$.count.deeper", nil, true},
		{"$.missing", nil, true},
	}
	for _, tt := range tests {
		got, err := JSONPath(doc, tt.path)
		if (err != nil) != tt.err {
			t.Errorf("JSONPath(%s) error = %v, want error %v", tt.path, err, tt.err)
			continue
		}
		if !tt.err && got != tt.want {
			t.Errorf("JSONPath(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
	if got, err := JSONPath(doc, "$"); err != nil || got == nil {
		t.Errorf("root path = %v, %v", got, err)
	}
	if _, err := JSONPath("{", "$.a"); err == nil {
		t.Error("expected invalid JSON error")
	}
}

func TestCompile(t *testing.T) {
	if err := Compile(`status == 200 && json.id > 0`); err != nil {
		t.Errorf("valid: %v", err)
	}
	for _, src := range []string{"", "status ==", "status"} {
		if err := Compile(src); err == nil {
			t.Errorf("Compile(%q) expected error", src)
		}
	}
}
