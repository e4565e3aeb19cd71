// Package validate is the validate-or-reject boundary for every document the
// core persists or consumes. Schemas are embedded and compiled once.
package validate

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

type Document string

const (
	DocManifest   Document = "manifest"
	DocGates      Document = "gates"
	DocBundle     Document = "bundle"
	DocAuditEvent Document = "audit_event"
	DocCitation   Document = "citation"
)

var (
	compileOnce sync.Once
	compiled    map[Document]*jsonschema.Schema
	compileErr  error
)

func compiledSchema(doc Document) (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		compiled = make(map[Document]*jsonschema.Schema)
		for _, doc := range []Document{DocManifest, DocGates, DocBundle, DocAuditEvent, DocCitation} {
			data, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.schema.json", doc))
			if err != nil {
				compileErr = fmt.Errorf("read embedded schema %s: %w", doc, err)
				return
			}
			schema, err := compiler.Compile(data)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", doc, err)
				return
			}
			compiled[doc] = schema
		}
	})
	if compileErr != nil {
		return nil, compileErr
	}
	schema, ok := compiled[doc]
	if !ok {
		return nil, fmt.Errorf("unknown document schema: %s", doc)
	}
	return schema, nil
}

// ValidateJSON checks one JSON document against the named embedded schema.
func ValidateJSON(doc Document, data []byte) error {
	schema, err := compiledSchema(doc)
	if err != nil {
		return err
	}
	result := schema.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed (%s): %v", doc, result.Errors)
}

// ValidateJSONL checks every non-empty line of a JSONL stream against the
// named embedded schema.
func ValidateJSONL(doc Document, data []byte) error {
	schema, err := compiledSchema(doc)
	if err != nil {
		return err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		result := schema.ValidateJSON(b)
		if !result.IsValid() {
			return fmt.Errorf("jsonl line %d: schema validation failed (%s): %v", line, doc, result.Errors)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read jsonl: %w", err)
	}
	return nil
}
