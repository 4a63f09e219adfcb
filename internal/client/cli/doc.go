// Package cli implements the logsync command line.
//
// Every command loads the configuration (file, LOGSYNC_* environment, then
// flags), builds an App around the local store and the backend, runs, and
// closes the App again. The serve command keeps the App alive and runs the
// connectivity monitor, the sync engine, the HTTP API and the gRPC health
// service until interrupted.
//
// Results are printed as text tables by default, or as JSON or YAML with
// --output. Failures map to exit codes through ExitError.
package cli
