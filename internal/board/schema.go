package board

import (
	"bytes"
	"errors"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// documentSchema describes the wire shape of the backing file. Diagnostics
// report what the permissive normalizer deliberately lets through; they
// never gate reads or writes.
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["revision", "updatedAt", "tasks", "messages"],
  "properties": {
    "revision": { "type": "integer", "minimum": 1 },
    "updatedAt": { "type": "string" },
    "tasks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "title", "owner", "lane", "status"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "title": { "type": "string", "minLength": 1 },
          "note": { "type": "string" },
          "effort": { "type": "string" },
          "milestone": { "type": "string" },
          "owner": { "enum": ["human", "ai"] },
          "lane": { "enum": ["todo", "progress", "done"] },
          "status": { "enum": ["todo", "progress", "done", "blocked"] },
          "priority": { "enum": ["p0", "p1", "p2"] },
          "createdAt": { "type": "string" }
        }
      }
    },
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "from", "to", "title", "body"],
        "properties": {
          "id": { "type": "string", "minLength": 1 },
          "from": { "enum": ["human", "ai"] },
          "to": { "enum": ["human", "ai"] },
          "type": { "type": "string" },
          "title": { "type": "string" },
          "body": { "type": "string" },
          "createdAt": { "type": "string" },
          "resolved": { "type": "boolean" },
          "inReplyTo": { "type": "string" }
        }
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchema))
		if err != nil {
			schemaErr = err
			return
		}
		if err := compiler.AddResource("board.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = compiler.Compile("board.schema.json")
	})
	return schemaCompiled, schemaErr
}

// Diagnose validates raw file content against the document schema and
// returns one finding per violation. A nil result means the document is
// clean.
func Diagnose(raw []byte) []string {
	sch, err := compiledSchema()
	if err != nil {
		return []string{"schema unavailable: " + err.Error()}
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []string{"not valid JSON: " + err.Error()}
	}
	err = sch.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	findings := []string{}
	collectValidationLeaves(verr, &findings)
	if len(findings) == 0 {
		findings = append(findings, verr.Error())
	}
	return findings
}

func collectValidationLeaves(verr *jsonschema.ValidationError, findings *[]string) {
	if verr == nil {
		return
	}
	if len(verr.Causes) == 0 {
		*findings = append(*findings, verr.Error())
		return
	}
	for _, cause := range verr.Causes {
		collectValidationLeaves(cause, findings)
	}
}
