// Package policy defines the runtime policy value that the rollout engine
// distributes, versions, and compares.
//
// A Policy is treated as an opaque configuration document by the rest of the
// engine: the rollout packages clone it, snapshot it, and diff it field by
// field, but never interpret what a given setting enforces. Enforcement is a
// host-application concern.
//
// The type is cheap to clone (deep copy of slices and the custom map) and
// flattens into an ordered list of path/value pairs via Fields, which is the
// basis for structural diffing in the version package.
package policy
