package registry

import "sort"

// Descriptor is the serialisable metadata of an entry. It never carries the
// instance, the constructor or function actions; restoring a snapshot yields
// entries that still need a factory, collector or constructor to resolve.
type Descriptor struct {
	Name       string
	Collector  string
	Tags       []string
	Attributes map[string]any
	// Actions maps action names to method names. Function actions are
	// listed with an empty method name.
	Actions  map[string]string
	Volatile bool
	Remote   bool
	Local    string
	File     string
}

// Describe captures the entry's metadata.
func (e *Entry) Describe() Descriptor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d := Descriptor{
		Name:      e.name,
		Collector: e.collector,
		Tags:      append([]string(nil), e.tags...),
		Volatile:  e.volatile,
		Remote:    e.remote,
		Local:     e.local,
		File:      e.file,
	}
	if len(e.attributes) > 0 {
		d.Attributes = make(map[string]any, len(e.attributes))
		for k, v := range e.attributes {
			d.Attributes[k] = v
		}
	}
	if len(e.actions) > 0 {
		d.Actions = make(map[string]string, len(e.actions))
		for k, def := range e.actions {
			d.Actions[k] = def.method
		}
	}
	return d
}

// Apply merges descriptor metadata into the entry. Tags and attributes are
// added, never removed.
func (e *Entry) Apply(d Descriptor) *Entry {
	for _, tag := range d.Tags {
		e.SetTag(tag)
	}
	keys := make([]string, 0, len(d.Attributes))
	for k := range d.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.SetAttribute(k, d.Attributes[k])
	}
	for name, method := range d.Actions {
		if method != "" {
			e.AddMethodAction(name, method)
		}
	}
	if d.Collector != "" {
		e.SetCollector(d.Collector)
	}
	if d.Volatile {
		e.SetVolatile(true)
	}
	if d.Remote {
		e.SetRemote(d.Local)
	}
	if d.File != "" {
		e.SetFile(d.File)
	}
	return e
}

// Snapshot describes every entry in registration order.
func (r *Registry) Snapshot() []Descriptor {
	entries := r.Entries()
	out := make([]Descriptor, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Describe())
	}
	return out
}

// Restore adds the described entries, merging into existing ones.
func (r *Registry) Restore(ds []Descriptor) []*Entry {
	out := make([]*Entry, 0, len(ds))
	for _, d := range ds {
		out = append(out, r.Add(d.Name).Apply(d))
	}
	return out
}
