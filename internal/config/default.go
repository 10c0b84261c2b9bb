package config

import _ "embed"

//go:embed assets/default_config.toml
var DefaultConfigTOML []byte
