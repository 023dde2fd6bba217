package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/example/task-tracker/errs"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const schemaBaseURL = "https://task-tracker.local/schemas/"

// Schema names, one per request body.
const (
	schemaRegister   = "register"
	schemaLogin      = "login"
	schemaProfile    = "profile"
	schemaPassword   = "password"
	schemaTaskCreate = "task_create"
	schemaTaskUpdate = "task_update"
)

// schemaSet holds the compiled request body schemas by name.
type schemaSet map[string]*jsonschema.Schema

func loadSchemas() (schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBaseURL+entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
		names = append(names, entry.Name())
	}

	set := make(schemaSet, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		set[strings.TrimSuffix(name, ".json")] = schema
	}
	return set, nil
}

// decode validates body against the named schema and unmarshals it into dst.
func (s schemaSet) decode(name string, body []byte, dst any) error {
	schema, ok := s[name]
	if !ok {
		return errs.Internal(fmt.Errorf("unknown schema %q", name))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return errs.Validation("malformed request body", map[string]string{"body": "must be a JSON document"})
	}
	if err := schema.Validate(doc); err != nil {
		return schemaError(err)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return errs.Validation("malformed request body", map[string]string{"body": err.Error()})
	}
	return nil
}

// schemaError turns a schema validation failure into per-field reasons.
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errs.Validation("invalid request body", nil)
	}

	fields := errs.FieldErrors{}
	collectSchemaErrors(ve, fields)
	if len(fields) == 0 {
		fields.Add("body", ve.Message)
	}
	return fields.Err()
}

func collectSchemaErrors(ve *jsonschema.ValidationError, fields errs.FieldErrors) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collectSchemaErrors(cause, fields)
		}
		return
	}

	if missing, ok := strings.CutPrefix(ve.Message, "missing properties: "); ok {
		for _, name := range quotedNames(missing) {
			fields.Add(joinField(ve.InstanceLocation, name), "is required")
		}
		return
	}
	if extra, ok := strings.CutPrefix(ve.Message, "additionalProperties "); ok {
		for _, name := range quotedNames(strings.TrimSuffix(extra, " not allowed")) {
			fields.Add(joinField(ve.InstanceLocation, name), "is not allowed")
		}
		return
	}
	fields.Add(joinField(ve.InstanceLocation, ""), ve.Message)
}

// quotedNames splits a list such as 'a', 'b' into its names.
func quotedNames(list string) []string {
	parts := strings.Split(list, ",")
	for i, part := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(part), "'")
	}
	return parts
}

// joinField converts a JSON pointer such as /checklist/0/text into
// checklist.0.text.
func joinField(pointer, name string) string {
	parts := strings.FieldsFunc(strings.TrimPrefix(pointer, "#"), func(r rune) bool { return r == '/' })
	if name != "" {
		parts = append(parts, name)
	}
	if len(parts) == 0 {
		return "body"
	}
	return strings.Join(parts, ".")
}
