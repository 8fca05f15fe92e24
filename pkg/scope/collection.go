package scope

// CollectionVars is the handle scripts use for collection.get/set/delete.
// Reads see the collection snapshot with pending writes applied; writes go
// to the overlay only.
type CollectionVars struct {
	c *Chain
}

// Collection returns the collection-variable handle for this chain.
func (c *Chain) Collection() CollectionVars {
	return CollectionVars{c: c}
}

func (cv CollectionVars) Get(name string) (string, bool) {
	if v, set := cv.c.overlay.get(name); set {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	for _, t := range cv.c.levels {
		if t.Level == Collection {
			v, ok := t.Vars[name]
			return v, ok
		}
	}
	return "", false
}

func (cv CollectionVars) Set(name, value string) error {
	if name == "" {
		return ErrInvalidName
	}
	cv.c.overlay.put(name, &value)
	return nil
}

func (cv CollectionVars) Delete(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	cv.c.overlay.put(name, nil)
	return nil
}

// Changes is the state a run hands back for the caller to persist.
type Changes struct {
	Runtime           map[string]string `json:"runtime,omitempty"`
	CollectionSet     map[string]string `json:"collection_set,omitempty"`
	CollectionDeleted []string          `json:"collection_deleted,omitempty"`
}

// Empty reports whether there is nothing to persist.
func (ch Changes) Empty() bool {
	return len(ch.Runtime) == 0 && len(ch.CollectionSet) == 0 && len(ch.CollectionDeleted) == 0
}

// Changes collects runtime values written during the run (seeded values
// left untouched are omitted) and the collection overlay, in first-write
// order for deletes.
func (c *Chain) Changes() Changes {
	var ch Changes
	for name, v := range c.runtime {
		if seeded, ok := c.seed[name]; ok && seeded == v {
			continue
		}
		if ch.Runtime == nil {
			ch.Runtime = make(map[string]string)
		}
		ch.Runtime[name] = v
	}
	for _, name := range c.overlay.order {
		v := c.overlay.vars[name]
		if v == nil {
			ch.CollectionDeleted = append(ch.CollectionDeleted, name)
			continue
		}
		if ch.CollectionSet == nil {
			ch.CollectionSet = make(map[string]string)
		}
		ch.CollectionSet[name] = *v
	}
	return ch
}
