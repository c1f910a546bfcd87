// Package topic provides dot-separated names for event shapes and wildcard
// matching over them.
//
// Every declared shape carries a name:
//
//	mod.loading
//	mod.script
//	host.stopping
//
// Script runtimes subscribe by pattern rather than by Go type:
//
//	mod.*        matches mod.loading, mod.loaded (not mod.a.b)
//	mod.**       matches mod, mod.loading, mod.a.b
//	*.stopping   matches host.stopping
//	**           matches everything
package topic
