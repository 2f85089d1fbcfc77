// Package cli provides the interactive taxdesk command-line client.
//
// It wires configuration, the HTTP API client, the session holder, the
// staging area and the upload engine into a REPL. Typical flow: obtain a
// token, resolve the identity, stage files, then create a request with them
// or attach them to an existing one.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// App.commands lists every command.
package cli
