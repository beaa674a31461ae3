package main

import (
	"errors"
	"os"
	"strings"

	"github.com/Alia5/girgen/internal/cmd"
	"github.com/Alia5/girgen/internal/codegen/common"
	"github.com/Alia5/girgen/internal/config"
	"github.com/Alia5/girgen/internal/configpaths"
	"github.com/Alia5/girgen/internal/log"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	version, err := common.GetVersion()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("girgen"),
		kong.Description("Generate Rust bindings from GObject Introspection metadata"),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		// Load configuration from JSON/YAML/TOML in priority order; flags/env override config values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	ctx.Bind(logger)
	logger.Debug("girgen", "version", version)

	err = ctx.Run()
	for _, c := range closeFiles {
		_ = c.Close()
	}
	var exit *cmd.ExitError
	if errors.As(err, &exit) {
		_, _ = os.Stderr.WriteString("girgen: " + exit.Error() + "\n")
		os.Exit(exit.Code)
	}
	ctx.FatalIfErrorf(err)
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	if v := os.Getenv("GIRGEN_CONFIG"); v != "" {
		return v
	}
	return ""
}
