// Package schemas embeds the JSON Schemas the daemon validates untrusted
// payloads against before any business-logic decode: a provenance
// manifest parsed from a commit trailer, a config file, or an editor
// telemetry event. Rejecting unknown-shape data here means a malformed
// payload surfaces as SchemaError before it ever reaches a typed decode.
package schemas

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed *.schema.json
var schemaFS embed.FS

const (
	ManifestSchema  = "manifest.schema.json"
	ConfigSchema    = "config.schema.json"
	TelemetrySchema = "telemetry_event.schema.json"
)

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() {
	compiler := jsonschema.NewCompiler()
	names := []string{ManifestSchema, ConfigSchema, TelemetrySchema}

	for _, name := range names {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			compileErr = fmt.Errorf("schemas: read %s: %w", name, err)
			return
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			compileErr = fmt.Errorf("schemas: add resource %s: %w", name, err)
			return
		}
	}

	compiled = make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(name)
		if err != nil {
			compileErr = fmt.Errorf("schemas: compile %s: %w", name, err)
			return
		}
		compiled[name] = schema
	}
}

// Validate checks raw JSON data against the named embedded schema.
func Validate(name string, data []byte) error {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return compileErr
	}
	schema, ok := compiled[name]
	if !ok {
		return fmt.Errorf("schemas: unknown schema %q", name)
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("schemas: unmarshal instance: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schemas: %s: %w", name, err)
	}
	return nil
}

// ValidateManifest validates raw against the provenance manifest schema.
func ValidateManifest(raw []byte) error { return Validate(ManifestSchema, raw) }

// ValidateConfig validates raw JSON config against the config schema.
// TOML and YAML configs are not checked here; decodeInto decodes them
// directly, which rejects a value of the wrong type for a known field but
// ignores unknown keys.
func ValidateConfig(raw []byte) error { return Validate(ConfigSchema, raw) }

// ValidateTelemetryEvent validates one telemetry protocol line.
func ValidateTelemetryEvent(raw []byte) error { return Validate(TelemetrySchema, raw) }
