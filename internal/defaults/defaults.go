// Package defaults provides the embedded starter files written by the
// square15 init subcommand.
package defaults

import _ "embed"

// ConfigYAML is the example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// SystemPromptMD is an example system prompt override.
//
//go:embed system-prompt.example.md
var SystemPromptMD []byte
