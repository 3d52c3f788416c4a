package config

import "dario.cat/mergo"

// mergeOnto merges src onto dst in place; non-zero fields in src win.
// Used to combine built-in defaults with user-supplied configuration.
func mergeOnto(dst, src any) error {
	return mergo.Merge(dst, src, mergo.WithOverride)
}
