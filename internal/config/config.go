// Package config loads named stack configurations from CUE or YAML files.
//
// A CUE file is unified with the embedded schema (schema.cue) so defaults
// and constraints live in one place. YAML files get the same defaults and
// checks in Go.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Merge policies.
const (
	MergeStore  = "store"
	MergeObject = "object"
)

// Defaults applied when a field is omitted.
const (
	DefaultSchemaVersion   = 1
	DefaultDeleteBatchSize = 100
	DefaultMergePolicy     = MergeStore
)

// ErrUnknownConfiguration is returned when the requested name is not declared.
var ErrUnknownConfiguration = errors.New("unknown configuration")

// Configuration is one named stack configuration.
type Configuration struct {
	Name              string `json:"-" yaml:"-"`
	Store             string `json:"store" yaml:"store"`
	SchemaVersion     int    `json:"schema_version" yaml:"schema_version"`
	DeleteBatchSize   int    `json:"delete_batch_size" yaml:"delete_batch_size"`
	MergePolicy       string `json:"merge_policy" yaml:"merge_policy"`
	StrictConfinement bool   `json:"strict_confinement" yaml:"strict_confinement"`
}

// Default returns the configuration used when no file declares name:
// a store named "<name>.db" in dir with default settings.
func Default(name, dir string) Configuration {
	return Configuration{
		Name:              name,
		Store:             filepath.Join(dir, name+".db"),
		SchemaVersion:     DefaultSchemaVersion,
		DeleteBatchSize:   DefaultDeleteBatchSize,
		MergePolicy:       DefaultMergePolicy,
		StrictConfinement: true,
	}
}

// LoadError reports a configuration problem, with a file position when known.
type LoadError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load returns the configuration called name from path.
//
// path may be a .cue file, a directory holding a CUE package, or a .yaml/.yml
// file. A relative store path is resolved against the file's directory.
func Load(path, name string) (Configuration, error) {
	all, err := LoadAll(path)
	if err != nil {
		return Configuration{}, err
	}
	cfg, ok := all[name]
	if !ok {
		return Configuration{}, fmt.Errorf("%s: %q (have %s): %w", path, name, strings.Join(Names(all), ", "), ErrUnknownConfiguration)
	}
	return cfg, nil
}

// LoadAll returns every configuration declared in path, keyed by name.
func LoadAll(path string) (map[string]Configuration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var (
		all  map[string]Configuration
		base string
	)
	switch {
	case info.IsDir():
		all, err = loadCUEDir(path)
		base = path
	case strings.HasSuffix(path, ".cue"):
		all, err = loadCUEFile(path)
		base = filepath.Dir(path)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		all, err = loadYAML(path)
		base = filepath.Dir(path)
	default:
		return nil, fmt.Errorf("config: %s: unsupported file type (want .cue, .yaml or a CUE directory)", path)
	}
	if err != nil {
		return nil, err
	}

	for name, cfg := range all {
		cfg.Name = name
		if !filepath.IsAbs(cfg.Store) {
			cfg.Store = filepath.Join(base, cfg.Store)
		}
		all[name] = cfg
	}
	return all, nil
}

// Names returns the configuration names in sorted order.
func Names(all map[string]Configuration) []string {
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func loadCUEFile(path string) (map[string]Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ctx := cuecontext.New()
	return decodeCUE(ctx, ctx.CompileBytes(data, cue.Filename(path)))
}

// loadCUEDir loads the CUE package in dir, the same way spec directories
// are loaded: one instance built from every .cue file.
func loadCUEDir(dir string) (map[string]Configuration, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Field: "config", Message: "no CUE instances loaded from " + dir}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	ctx := cuecontext.New()
	return decodeCUE(ctx, ctx.BuildInstance(instances[0]))
}

func decodeCUE(ctx *cue.Context, v cue.Value) (map[string]Configuration, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	confs := unified.LookupPath(cue.ParsePath("configuration"))
	if !confs.Exists() {
		return nil, &LoadError{Field: "configuration", Message: "no configurations declared", Pos: v.Pos()}
	}

	iter, err := confs.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	all := map[string]Configuration{}
	for iter.Next() {
		var cfg Configuration
		if err := iter.Value().Decode(&cfg); err != nil {
			return nil, formatCUEError(err)
		}
		all[iter.Label()] = cfg
	}
	return all, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &LoadError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &LoadError{Field: "cue", Message: first.Error()}
}

// yamlFile mirrors the CUE layout. Pointer fields tell omitted from zero.
type yamlFile struct {
	Configuration map[string]yamlConfiguration `yaml:"configuration"`
}

type yamlConfiguration struct {
	Store             string  `yaml:"store"`
	SchemaVersion     *int    `yaml:"schema_version"`
	DeleteBatchSize   *int    `yaml:"delete_batch_size"`
	MergePolicy       *string `yaml:"merge_policy"`
	StrictConfinement *bool   `yaml:"strict_confinement"`
}

func loadYAML(path string) (map[string]Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	var file yamlFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(file.Configuration) == 0 {
		return nil, &LoadError{Field: "configuration", Message: "no configurations declared in " + path}
	}

	all := make(map[string]Configuration, len(file.Configuration))
	for name, raw := range file.Configuration {
		cfg := Configuration{
			Store:             raw.Store,
			SchemaVersion:     DefaultSchemaVersion,
			DeleteBatchSize:   DefaultDeleteBatchSize,
			MergePolicy:       DefaultMergePolicy,
			StrictConfinement: true,
		}
		if raw.SchemaVersion != nil {
			cfg.SchemaVersion = *raw.SchemaVersion
		}
		if raw.DeleteBatchSize != nil {
			cfg.DeleteBatchSize = *raw.DeleteBatchSize
		}
		if raw.MergePolicy != nil {
			cfg.MergePolicy = *raw.MergePolicy
		}
		if raw.StrictConfinement != nil {
			cfg.StrictConfinement = *raw.StrictConfinement
		}
		if err := cfg.check(); err != nil {
			return nil, fmt.Errorf("configuration.%s: %w", name, err)
		}
		all[name] = cfg
	}
	return all, nil
}

// check enforces the constraints schema.cue expresses for CUE files.
func (c Configuration) check() error {
	if c.Store == "" {
		return &LoadError{Field: "store", Message: "store is required"}
	}
	if c.SchemaVersion < 1 {
		return &LoadError{Field: "schema_version", Message: "must be >= 1"}
	}
	if c.DeleteBatchSize < 1 {
		return &LoadError{Field: "delete_batch_size", Message: "must be >= 1"}
	}
	if c.MergePolicy != MergeStore && c.MergePolicy != MergeObject {
		return &LoadError{Field: "merge_policy", Message: fmt.Sprintf("must be %q or %q, got %q", MergeStore, MergeObject, c.MergePolicy)}
	}
	return nil
}

// Resolver maps a configuration name to its Configuration.
type Resolver func(name string) (Configuration, error)

// FileResolver resolves names from the configuration file at path. With an
// empty path every name resolves to Default(name, dir).
func FileResolver(path, dir string) Resolver {
	return func(name string) (Configuration, error) {
		if path == "" {
			return Default(name, dir), nil
		}
		return Load(path, name)
	}
}
