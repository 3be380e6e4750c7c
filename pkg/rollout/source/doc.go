// Package source loads policy documents from YAML files and watches them
// for changes.
//
// FileSource reads a single policy file and, when watching, delivers each
// successfully parsed revision to a callback. Filesystem events are
// debounced so editors that write in bursts trigger one reload, and a file
// that fails to parse is skipped while the last good policy stays in
// effect.
package source
