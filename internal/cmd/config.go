package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/Alia5/girgen/internal/configpaths"

	toml "github.com/pelletier/go-toml"
	yaml "gopkg.in/yaml.v3"
)

type ConfigCommand struct {
	Init ConfigInit `cmd:"" help:"Write a configuration file with every flag and its default"`
}

// ConfigInit writes a config scaffold for one command. Keys are kong flag
// names, which is what the configuration loaders match on.
type ConfigInit struct {
	Command string `arg:"" name:"command" help:"Command to write the configuration for" enum:"generate"`
	Format  string `help:"Output format" enum:"json,yaml,yml,toml" default:"json"`
	Output  string `help:"Destination file (default: COMMAND.FORMAT in the working directory)"`
	Force   bool   `help:"Overwrite an existing file"`
}

var scaffolds = map[string]reflect.Type{
	"generate": reflect.TypeOf(Generate{}),
}

var marshalers = map[configpaths.Format]func(any) ([]byte, error){
	configpaths.JSON: func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") },
	configpaths.YAML: yaml.Marshal,
	configpaths.TOML: toml.Marshal,
}

func (c *ConfigInit) Run() error {
	format, ok := configpaths.ParseFormat(c.Format)
	if !ok {
		return fmt.Errorf("unsupported format: %s", c.Format)
	}
	t, ok := scaffolds[c.Command]
	if !ok {
		return fmt.Errorf("no configuration for command %q", c.Command)
	}

	dest := c.Output
	if dest == "" {
		dest = c.Command + "." + string(format)
	}
	if _, err := os.Stat(dest); err == nil && !c.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", dest)
	}

	data, err := marshalers[format](scaffold(t))
	if err != nil {
		return fmt.Errorf("marshal %s config: %w", format, err)
	}
	if err := configpaths.EnsureDir(dest); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

// flagName returns the kong flag name of a field: its name tag or the
// field name in kebab case.
func flagName(f reflect.StructField) string {
	if n := f.Tag.Get("name"); n != "" {
		return n
	}
	r := []rune(f.Name)
	var b strings.Builder
	for i, c := range r {
		if unicode.IsUpper(c) {
			prevLower := i > 0 && unicode.IsLower(r[i-1])
			nextLower := i > 0 && i+1 < len(r) && unicode.IsUpper(r[i-1]) && unicode.IsLower(r[i+1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(c))
	}
	return b.String()
}

// scaffold maps every flag of a command struct to its default value.
// Embedded groups nest under their prefix.
func scaffold(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	out := map[string]any{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() || f.Tag.Get("kong") == "-" {
			continue
		}
		if _, embed := f.Tag.Lookup("embed"); embed {
			sub := scaffold(f.Type)
			if name := strings.TrimSuffix(f.Tag.Get("prefix"), "."); name != "" {
				out[name] = sub
				continue
			}
			for k, v := range sub {
				out[k] = v
			}
			continue
		}
		if v := defaultValue(f.Type, f.Tag.Get("default")); v != nil {
			out[flagName(f)] = v
		}
	}
	return out
}

// defaultValue converts a kong default tag to a typed value. Kinds the
// generate command does not use yield nil and are left out.
func defaultValue(t reflect.Type, def string) any {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return def
	case reflect.Bool:
		b, _ := strconv.ParseBool(def)
		return b
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(def, 10, 64)
		return n
	case reflect.Slice:
		if t.Elem().Kind() != reflect.String {
			return nil
		}
		if def == "" {
			return []string{}
		}
		return strings.Split(def, ",")
	case reflect.Struct:
		return scaffold(t)
	}
	return nil
}
