// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so config validation works in
// installed binaries regardless of the working directory.
package schemasassets

import _ "embed"

// ConfigSchema is the embedded schema for expindex config files.
//
//go:embed config.schema.json
var ConfigSchema []byte
