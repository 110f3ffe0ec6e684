package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	createSoftwareSchema = mustCompileSchema("create_software.json", `{
		"type": "object",
		"required": ["name"],
		"properties": {"name": {"type": "string", "minLength": 1}}
	}`)
	updateVersionSchema = mustCompileSchema("update_version.json", `{
		"type": "object",
		"required": ["version"],
		"properties": {"version": {"type": "string"}}
	}`)
	changeKeyStatusSchema = mustCompileSchema("change_key_status.json", `{
		"type": "object",
		"required": ["key", "activated"],
		"properties": {
			"key": {"type": "string"},
			"activated": {"type": "boolean"}
		}
	}`)
	keyRefSchema = mustCompileSchema("key_ref.json", `{
		"type": "object",
		"required": ["key"],
		"properties": {"key": {"type": "string"}}
	}`)
)

var errMalformedBody = errors.New("invalid json body")

// requestSchema is a compiled JSON Schema for one request body shape.
type requestSchema struct {
	schema *santhosh.Schema
}

func mustCompileSchema(name, schemaJSON string) *requestSchema {
	sch, err := compileSchema(name, []byte(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return &requestSchema{schema: sch}
}

func compileSchema(name string, schemaJSON []byte) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// validate returns errMalformedBody for non-JSON input and a joined list of
// violations otherwise.
func (s *requestSchema) validate(body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return errMalformedBody
	}
	if err := s.schema.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return errors.New(strings.Join(collectValidationErrors(ve), "; "))
		}
		return err
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msg := ve.Message
		if ve.InstanceLocation != "" {
			msg = ve.InstanceLocation + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
