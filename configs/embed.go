// Package configs holds the configuration template embedded in the binary.
//
// `roomdex config init` writes it out; edit roomdex.example.yaml and rebuild
// to change what new installations start from.
package configs

import _ "embed"

// ConfigTemplate is the commented roomdex.yaml written by `roomdex config init`.
//
//go:embed roomdex.example.yaml
var ConfigTemplate string
