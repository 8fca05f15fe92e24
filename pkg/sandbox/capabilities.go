package sandbox

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/ormasoftchile/arcanine/pkg/model"
	"github.com/ormasoftchile/arcanine/pkg/resolve"
)

// iterableJS gives a map-like object a [Symbol.iterator] over entries().
const iterableJS = `(function (o) {
	o[Symbol.iterator] = function () { return o.entries()[Symbol.iterator](); };
	return o;
})`

// install publishes the capability surface as globals on vm.
func install(vm *goja.Runtime, sc *Context, rec *recorder) error {
	iterable, err := vm.RunString(iterableJS)
	if err != nil {
		return err
	}
	makeIterable, _ := goja.AssertFunction(iterable)

	c := &caps{vm: vm, sc: sc, rec: rec, makeIterable: makeIterable}
	globals := map[string]any{
		"env":        c.env(),
		"collection": c.collection(),
		"console":    c.console(),
		"crypto":     c.crypto(),
		"assert":     c.assert,
		"request":    goja.Undefined(),
		"response":   goja.Undefined(),
	}
	if sc.Request != nil {
		req, err := c.request()
		if err != nil {
			return err
		}
		globals["request"] = req
	}
	if sc.Response != nil {
		resp, err := c.response()
		if err != nil {
			return err
		}
		globals["response"] = resp
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

type caps struct {
	vm           *goja.Runtime
	sc           *Context
	rec          *recorder
	makeIterable goja.Callable
}

func (c *caps) fn(f func(goja.FunctionCall) goja.Value) goja.Value {
	return c.vm.ToValue(f)
}

func (c *caps) throw(format string, args ...any) {
	panic(c.vm.NewTypeError("%s", fmt.Sprintf(format, args...)))
}

func (c *caps) name(call goja.FunctionCall) string {
	arg := call.Argument(0)
	if goja.IsUndefined(arg) || goja.IsNull(arg) || arg.String() == "" {
		c.throw("variable name must be a non-empty string")
	}
	return arg.String()
}

func (c *caps) optional(v string, ok bool) goja.Value {
	if !ok {
		return goja.Undefined()
	}
	return c.vm.ToValue(v)
}

// env reads through the whole chain (with nested tokens expanded) and
// writes to the runtime level.
func (c *caps) env() *goja.Object {
	o := c.vm.NewObject()
	_ = o.Set("get", c.fn(func(call goja.FunctionCall) goja.Value {
		v, ok := c.sc.Vars.Get(c.name(call))
		if ok {
			v = resolve.Resolve(c.sc.Vars, v, c.sc.MaxDepth).Output
		}
		return c.optional(v, ok)
	}))
	_ = o.Set("set", c.fn(func(call goja.FunctionCall) goja.Value {
		if err := c.sc.Vars.Set(c.name(call), stringValue(c.vm, call.Argument(1))); err != nil {
			c.throw("env.set: %v", err)
		}
		return goja.Undefined()
	}))
	_ = o.Set("delete", c.fn(func(call goja.FunctionCall) goja.Value {
		if err := c.sc.Vars.Delete(c.name(call)); err != nil {
			c.throw("env.delete: %v", err)
		}
		return goja.Undefined()
	}))
	return o
}

func (c *caps) collection() *goja.Object {
	cv := c.sc.Vars.Collection()
	o := c.vm.NewObject()
	_ = o.Set("get", c.fn(func(call goja.FunctionCall) goja.Value {
		return c.optional(cv.Get(c.name(call)))
	}))
	_ = o.Set("set", c.fn(func(call goja.FunctionCall) goja.Value {
		if err := cv.Set(c.name(call), stringValue(c.vm, call.Argument(1))); err != nil {
			c.throw("collection.set: %v", err)
		}
		return goja.Undefined()
	}))
	_ = o.Set("delete", c.fn(func(call goja.FunctionCall) goja.Value {
		if err := cv.Delete(c.name(call)); err != nil {
			c.throw("collection.delete: %v", err)
		}
		return goja.Undefined()
	}))
	return o
}

func (c *caps) console() *goja.Object {
	o := c.vm.NewObject()
	for _, level := range []ConsoleLevel{ConsoleLog, ConsoleWarn, ConsoleError} {
		_ = o.Set(string(level), c.fn(func(call goja.FunctionCall) goja.Value {
			c.rec.log(level, format(c.vm, call.Arguments))
			return goja.Undefined()
		}))
	}
	return o
}

func (c *caps) crypto() *goja.Object {
	gen := c.sc.NewUUID
	if gen == nil {
		gen = uuid.NewString
	}
	o := c.vm.NewObject()
	_ = o.Set("randomUUID", c.fn(func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(gen())
	}))
	return o
}

func (c *caps) assert(call goja.FunctionCall) goja.Value {
	cond := call.Argument(0)
	var name string
	if msg := call.Argument(1); !goja.IsUndefined(msg) && !goja.IsNull(msg) {
		name = msg.String()
	}
	return c.vm.ToValue(c.rec.assert(cond.ToBoolean(), name, display(c.vm, cond)))
}

// accessor defines name on o with a getter and, when set is non-nil, a setter.
func (c *caps) accessor(o *goja.Object, name string, get func() goja.Value, set func(goja.Value)) error {
	getter := c.fn(func(goja.FunctionCall) goja.Value { return get() })
	setter := c.fn(func(call goja.FunctionCall) goja.Value {
		if set == nil {
			c.throw("%s is read-only", name)
		}
		set(call.Argument(0))
		return goja.Undefined()
	})
	return o.DefineAccessorProperty(name, getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

func (c *caps) request() (*goja.Object, error) {
	req := c.sc.Request
	mutable := c.sc.Stage == StagePreRequest
	o := c.vm.NewObject()

	guard := func(field string, apply func(goja.Value)) func(goja.Value) {
		return func(v goja.Value) {
			if !mutable {
				c.throw("request.%s is read-only after the request has been sent", field)
			}
			apply(v)
		}
	}
	props := []struct {
		name string
		get  func() goja.Value
		set  func(goja.Value)
	}{
		{"name", func() goja.Value { return c.vm.ToValue(req.Name) }, nil},
		{"url", func() goja.Value { return c.vm.ToValue(req.URL) }, guard("url", func(v goja.Value) {
			req.URL = stringValue(c.vm, v)
		})},
		{"method", func() goja.Value { return c.vm.ToValue(string(req.Method)) }, guard("method", func(v goja.Value) {
			m, err := model.ParseMethod(stringValue(c.vm, v))
			if err != nil {
				c.throw("request.method: %v", err)
			}
			req.Method = m
		})},
		{"body", func() goja.Value { return c.vm.ToValue(req.Body) }, guard("body", func(v goja.Value) {
			req.Body = stringValue(c.vm, v)
		})},
	}
	for _, p := range props {
		if err := c.accessor(o, p.name, p.get, p.set); err != nil {
			return nil, err
		}
	}
	headers, err := c.headers(&req.Headers, mutable, "request.headers")
	if err != nil {
		return nil, err
	}
	if err := o.DefineDataProperty("headers", headers, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return nil, err
	}
	return o, nil
}

func (c *caps) response() (*goja.Object, error) {
	resp := c.sc.Response
	o := c.vm.NewObject()
	headers, err := c.headers(&resp.Headers, false, "response.headers")
	if err != nil {
		return nil, err
	}
	fields := []struct {
		name string
		v    any
	}{
		{"status", resp.Status},
		{"statusText", resp.StatusText},
		{"body", resp.Body},
		{"time", resp.TimeMs()},
		{"size", resp.Size},
		{"headers", headers},
	}
	for _, f := range fields {
		if err := o.DefineDataProperty(f.name, c.vm.ToValue(f.v), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	_ = o.Set("text", c.fn(func(goja.FunctionCall) goja.Value {
		return c.vm.ToValue(resp.Body)
	}))
	_ = o.Set("json", c.fn(func(goja.FunctionCall) goja.Value {
		parse, _ := goja.AssertFunction(c.vm.Get("JSON").ToObject(c.vm).Get("parse"))
		v, err := parse(goja.Undefined(), c.vm.ToValue(resp.Body))
		if err != nil {
			panic(c.vm.NewGoError(&ParseError{Err: err}))
		}
		return v
	}))
	return o, nil
}

// headers exposes h as a map-like object: get/has/set/delete/entries/
// toObject/forEach plus iteration with for...of.
func (c *caps) headers(h *model.Headers, mutable bool, label string) (goja.Value, error) {
	o := c.vm.NewObject()
	readOnly := func(op string) {
		if !mutable {
			c.throw("%s.%s: headers are read-only", label, op)
		}
	}
	_ = o.Set("get", c.fn(func(call goja.FunctionCall) goja.Value {
		return c.optional(h.Get(call.Argument(0).String()))
	}))
	_ = o.Set("has", c.fn(func(call goja.FunctionCall) goja.Value {
		return c.vm.ToValue(h.Has(call.Argument(0).String()))
	}))
	_ = o.Set("set", c.fn(func(call goja.FunctionCall) goja.Value {
		readOnly("set")
		name := call.Argument(0).String()
		if name == "" {
			c.throw("%s.set: header name must be non-empty", label)
		}
		h.Set(name, stringValue(c.vm, call.Argument(1)))
		return goja.Undefined()
	}))
	_ = o.Set("delete", c.fn(func(call goja.FunctionCall) goja.Value {
		readOnly("delete")
		h.Delete(call.Argument(0).String())
		return goja.Undefined()
	}))
	_ = o.Set("entries", c.fn(func(goja.FunctionCall) goja.Value {
		var pairs []any
		for _, kv := range h.Enabled() {
			pairs = append(pairs, c.vm.NewArray(kv.Key, kv.Value))
		}
		return c.vm.NewArray(pairs...)
	}))
	_ = o.Set("toObject", c.fn(func(goja.FunctionCall) goja.Value {
		obj := c.vm.NewObject()
		for _, kv := range h.Enabled() {
			_ = obj.Set(kv.Key, kv.Value)
		}
		return obj
	}))
	_ = o.Set("forEach", c.fn(func(call goja.FunctionCall) goja.Value {
		cb, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			c.throw("%s.forEach: callback is not a function", label)
		}
		for _, kv := range h.Enabled() {
			if _, err := cb(goja.Undefined(), c.vm.ToValue(kv.Value), c.vm.ToValue(kv.Key)); err != nil {
				panic(err)
			}
		}
		return goja.Undefined()
	}))
	return c.makeIterable(goja.Undefined(), o)
}
