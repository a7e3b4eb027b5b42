// Package cli parses the featconf command line into an app.Config. It owns
// the resolve and validate flag sets, the usage and version text, and the
// ExitError type that carries a process exit code for usage mistakes. It
// never performs any work itself; everything past argument handling is the
// app package's job.
package cli
