// Package scope holds the layered variable tables a single pipeline run
// resolves against.
//
// Every level below Runtime is an immutable snapshot taken when the chain is
// built. Runtime is the only writable level. Collection writes made by
// scripts land in a separate overlay so the snapshot itself never changes and
// the caller can commit the overlay after the run.
package scope

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Level is one tier of the precedence hierarchy. Higher values win.
type Level int

const (
	Global Level = iota
	Secrets
	Environment
	Collection
	Folder
	Request
	Runtime
)

var levelNames = [...]string{"global", "secrets", "environment", "collection", "folder", "request", "runtime"}

func (l Level) String() string {
	if l < Global || l > Runtime {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel maps a level name back to its Level.
func ParseLevel(s string) (Level, error) {
	for i, n := range levelNames {
		if strings.EqualFold(s, n) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scope level %q", s)
}

var (
	// ErrImmutable is returned when a write targets any level but Runtime.
	ErrImmutable = errors.New("scope level is immutable")
	// ErrInvalidName is returned for empty variable names.
	ErrInvalidName = errors.New("variable name must be non-empty")
	// ErrLevelOrder is returned when levels are not supplied in ascending order.
	ErrLevelOrder = errors.New("scope levels must be in ascending precedence order")
)

// Table is one level's name/value mapping.
type Table struct {
	Level Level
	Vars  map[string]string
}

// Chain is the per-run variable hierarchy.
//
// A Chain is owned by a single run and is not safe for concurrent mutation.
// Distinct chains never share mutable state.
type Chain struct {
	levels  []Table // ascending precedence, Runtime excluded
	runtime map[string]string
	seed    map[string]string // runtime values supplied to Build
	overlay *overlay
}

// overlay buffers collection-level writes. A nil value marks a delete.
type overlay struct {
	vars  map[string]*string
	order []string
}

// Build snapshots levels into a new Chain. Levels must be strictly
// ascending. A trailing Runtime table is optional; when present its values
// seed the runtime level.
func Build(levels []Table) (*Chain, error) {
	c := &Chain{
		runtime: make(map[string]string),
		overlay: &overlay{vars: make(map[string]*string)},
	}
	prev := Level(-1)
	for _, t := range levels {
		if t.Level < Global || t.Level > Runtime {
			return nil, fmt.Errorf("%w: %s", ErrLevelOrder, t.Level)
		}
		if t.Level <= prev {
			return nil, fmt.Errorf("%w: %s after %s", ErrLevelOrder, t.Level, prev)
		}
		prev = t.Level
		for name := range t.Vars {
			if name == "" {
				return nil, fmt.Errorf("%w (level %s)", ErrInvalidName, t.Level)
			}
		}
		if t.Level == Runtime {
			maps.Copy(c.runtime, t.Vars)
			c.seed = maps.Clone(t.Vars)
			continue
		}
		c.levels = append(c.levels, Table{Level: t.Level, Vars: maps.Clone(t.Vars)})
	}
	return c, nil
}

// Get scans from highest to lowest precedence and returns the first hit.
func (c *Chain) Get(name string) (string, bool) {
	v, _, ok := c.Lookup(name)
	return v, ok
}

// Lookup is Get that also reports which level answered.
func (c *Chain) Lookup(name string) (string, Level, bool) {
	if v, ok := c.runtime[name]; ok {
		return v, Runtime, true
	}
	pending, hasPending := c.overlay.get(name)
	overlaid := false
	for i := len(c.levels) - 1; i >= 0; i-- {
		t := c.levels[i]
		if !overlaid && t.Level <= Collection {
			overlaid = true
			if hasPending && pending != nil {
				return *pending, Collection, true
			}
		}
		if t.Level == Collection && hasPending {
			continue
		}
		if v, ok := t.Vars[name]; ok {
			return v, t.Level, true
		}
	}
	if !overlaid && hasPending && pending != nil {
		return *pending, Collection, true
	}
	return "", 0, false
}

// Set writes name into the Runtime level.
func (c *Chain) Set(name, value string) error {
	return c.SetAt(Runtime, name, value)
}

// Delete removes name from the Runtime level.
func (c *Chain) Delete(name string) error {
	return c.DeleteAt(Runtime, name)
}

// SetAt writes to level, which must be Runtime.
func (c *Chain) SetAt(level Level, name, value string) error {
	if level != Runtime {
		return fmt.Errorf("%w: %s", ErrImmutable, level)
	}
	if name == "" {
		return ErrInvalidName
	}
	c.runtime[name] = value
	return nil
}

// DeleteAt removes name from level, which must be Runtime.
func (c *Chain) DeleteAt(level Level, name string) error {
	if level != Runtime {
		return fmt.Errorf("%w: %s", ErrImmutable, level)
	}
	delete(c.runtime, name)
	return nil
}

// Runtime returns a copy of the runtime level.
func (c *Chain) Runtime() map[string]string {
	return maps.Clone(c.runtime)
}

// Level returns a copy of the snapshot for level, or nil when absent.
// For Collection the overlay is applied.
func (c *Chain) Level(level Level) map[string]string {
	if level == Runtime {
		return c.Runtime()
	}
	var out map[string]string
	for _, t := range c.levels {
		if t.Level == level {
			out = maps.Clone(t.Vars)
			break
		}
	}
	if level == Collection {
		if out == nil {
			out = make(map[string]string)
		}
		for name, v := range c.overlay.vars {
			if v == nil {
				delete(out, name)
			} else {
				out[name] = *v
			}
		}
	}
	return out
}

// Flatten returns the effective value of every visible name, as Get would
// answer for each.
func (c *Chain) Flatten() map[string]string {
	out := make(map[string]string)
	collectionDone := false
	for _, t := range c.levels {
		if t.Level >= Collection && !collectionDone {
			maps.Copy(out, c.Level(Collection))
			collectionDone = true
		}
		if t.Level != Collection {
			maps.Copy(out, t.Vars)
		}
	}
	if !collectionDone {
		maps.Copy(out, c.Level(Collection))
	}
	maps.Copy(out, c.runtime)
	return out
}

// Levels lists the levels present, ascending, always ending with Runtime.
func (c *Chain) Levels() []Level {
	out := make([]Level, 0, len(c.levels)+1)
	for _, t := range c.levels {
		out = append(out, t.Level)
	}
	return append(out, Runtime)
}

// SecretValues returns the non-empty values of the Secrets level, sorted.
func (c *Chain) SecretValues() []string {
	var out []string
	for _, t := range c.levels {
		if t.Level != Secrets {
			continue
		}
		for _, v := range t.Vars {
			if v != "" {
				out = append(out, v)
			}
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (o *overlay) get(name string) (*string, bool) {
	v, ok := o.vars[name]
	return v, ok
}

func (o *overlay) put(name string, v *string) {
	if _, ok := o.vars[name]; !ok {
		o.order = append(o.order, name)
	}
	o.vars[name] = v
}
