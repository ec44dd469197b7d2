// Package pending implements the correlation table for outstanding requests.
//
// Every outbound request registers a Call keyed by a fresh correlation id.
// The call is settled exactly once: by the matching response (Resolve or
// Reject) or by its deadline (Await), whichever comes first. Settling an id
// that is no longer in the table is a no-op, which is how late and duplicate
// responses are discarded.
//
// The table is shared by every connection of a process and is the only
// structure mutated continuously at runtime, so all operations are guarded
// by a single mutex around an id-keyed map.
package pending
