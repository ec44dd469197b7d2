// Package registry provides the central "glue" for the component system.
//
// The Registry maps globally unique names to Entries. An Entry carries cheap
// metadata (tags, attributes, named actions) and knows how to produce its
// instance lazily: through a factory set on the entry, through the factory of
// the Collector that owns it, or through its default constructor. Metadata
// queries never trigger construction; only Object and Action do.
//
// During application startup the registry is populated by Modules (the
// compile-time registration table) and Collectors (descriptor lists under a
// namespace prefix), then validated so that every entry can actually be
// resolved. After that boot phase the registry is effectively read-only;
// the locks it carries exist for the lazy resolution that happens on first
// use from concurrently served connections.
package registry
