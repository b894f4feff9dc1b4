// Package cache defines the disk-backed store that keeps full audio files
// keyed by their canonical URL. Entries live under StoragePath/<namespace>/
// as a body file plus a small JSON sidecar describing the original key,
// content type and recorded length. Writes use temp file + rename so a
// concurrent reader observes either the old or the new blob, never a torn
// one. Tolerant lookups (decoded, encoded, substring, filename) are layered
// on top of the exact-key primitives through an ordered matcher list.
package cache
