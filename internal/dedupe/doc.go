// Package dedupe remembers recently used request ids for a fixed window so
// replayed requests can be detected and answered without doing the work twice.
package dedupe
