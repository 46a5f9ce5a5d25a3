// Package configs provides the embedded settings template.
//
// The template is embedded at build time so `metasearch config init` works
// from source builds and binary releases alike. It is written to the user
// settings path (see internal/config GetUserConfigPath).
//
// Settings are layered (see internal/config Load):
//  1. Hardcoded defaults (internal/config NewConfig)
//  2. User settings (~/.config/metasearch/settings.yaml)
//  3. An explicit --config file
//  4. Environment variables (METASEARCH_*)
package configs

import _ "embed"

// SettingsTemplate is the commented settings file written by
// `metasearch config init`. It enables one network engine and shows how to
// declare every other engine type.
//
//go:embed settings.example.yaml
var SettingsTemplate string
