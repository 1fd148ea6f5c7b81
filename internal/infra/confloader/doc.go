// Package confloader provides the configuration loading mechanism.
//
// Configuration is assembled with koanf from, lowest priority first:
//
//  1. Default values (a map loaded by the caller)
//  2. A YAML configuration file
//  3. Environment variables: PREFIX_SECTION_KEY, plus explicit bindings of
//     unprefixed variables to keys
//  4. Command-line flags (a map loaded by the caller)
//
// Watcher notifies callbacks when the configuration file is rewritten, so
// callers can re-run the loader and apply changed values.
package confloader
