package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/grovetools/weave/errors"
	"github.com/grovetools/weave/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed loadfile.schema.json
var loadFileSchemaData []byte

// LoadFile is the bulk-load document accepted by the loadFromFile IPC
// request.
type LoadFile struct {
	Sessions []LoadFileEntry `json:"sessions"`
}

// LoadFileEntry describes one session to create. Folder may carry a
// leading ~.
type LoadFileEntry struct {
	Type   models.SessionKind `json:"type"`
	Folder string             `json:"folder"`
	Name   string             `json:"name,omitempty"`
}

// compileLoadFileSchema compiles the embedded schema. The result is not
// cached; ParseLoadFile compiles it anew on every call.
func compileLoadFileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("loadfile.json", strings.NewReader(string(loadFileSchemaData))); err != nil {
		return nil, fmt.Errorf("failed to add embedded schema resource: %w", err)
	}
	return compiler.Compile("loadfile.json")
}

// ParseLoadFile reads and validates a bulk-load file. Validation runs
// against the embedded JSON schema before any session is created from it.
func ParseLoadFile(path string) (*LoadFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.LoadFileInvalid(path, err)
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, errors.LoadFileInvalid(path, err)
	}

	schema, err := compileLoadFileSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile load-file schema: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return nil, errors.LoadFileInvalid(path, err)
	}

	var file LoadFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.LoadFileInvalid(path, err)
	}
	return &file, nil
}
