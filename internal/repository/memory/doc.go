// Package memory provides in-process implementations of the repository
// contracts. They back the server when no database URL is configured and
// serve as fakes in tests. State is lost on restart.
package memory
