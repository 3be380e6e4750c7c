// Package version keeps an in-memory lineage of policy revisions.
//
// Every CreateVersion call snapshots the policy and links it to the current
// head, forming a parent chain back to the root version. Versions can be
// tagged, listed, diffed field by field, and walked back through their
// ancestry. Retention is bounded: once MaxVersions is exceeded the oldest
// non-root version is evicted, so the root of the lineage always survives.
package version
