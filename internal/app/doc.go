// Package app is the composition root. It owns the registry, wires the
// collectors, descriptor files and compiled-in modules into it, drives the
// lifecycle and serves the protocol over socket.io, decoupled from any
// specific entrypoint like a CLI.
package app
