// Package config holds the root command line of girgen.
package config

import (
	"github.com/Alia5/girgen/internal/cmd"

	"github.com/alecthomas/kong"
)

type LogConfig struct {
	Level string `help:"Log level" enum:"trace,debug,info,warn,error" default:"info" env:"GIRGEN_LOG_LEVEL"`
	File  string `help:"Write the log to this file; the console then only shows warnings and errors" type:"path" env:"GIRGEN_LOG_FILE"`
}

// CLI is parsed by kong. Flags can also be set from a config file found by
// configpaths; explicit flags and environment variables win.
type CLI struct {
	Version    kong.VersionFlag `help:"Print the girgen version and exit"`
	ConfigFile string           `name:"config" help:"JSON, YAML or TOML configuration file" type:"path" env:"GIRGEN_CONFIG"`
	Log        LogConfig        `embed:"" prefix:"log."`

	Generate cmd.Generate      `cmd:"" help:"Generate Rust crates from GIR files"`
	Config   cmd.ConfigCommand `cmd:"" help:"Configuration file helpers"`
}
