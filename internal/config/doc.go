// Package config defines the hub's settings and loads them from an HCL file.
//
// Settings are resolved in three layers: Default, then an optional HCL file
// applied with Load, then command-line flags (see package cli). A file only
// overrides the attributes it sets. Expressions in the file may read the
// process environment through the env object, e.g. listen = env.HUB_LISTEN.
package config
