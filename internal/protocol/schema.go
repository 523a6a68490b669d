package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://auctionhouse.ai/schemas/"

var (
	schemaOnce sync.Once
	schemaErr  error
	schemas    map[string]*jsonschema.Schema
)

var schemaFiles = map[string]string{
	TypeHello:   "hello.schema.json",
	TypeExecute: "execute.schema.json",
	TypeQuery:   "query.schema.json",
	TypeResult:  "result.schema.json",
}

func loadSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		schemaErr = err
		return
	}
	for _, e := range entries {
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			schemaErr = err
			return
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", e.Name(), err)
			return
		}
	}
	schemas = make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// Validate checks a raw frame against the schema registered for typ.
// Types without a schema pass.
func Validate(typ string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s := schemas[typ]
	if s == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
