package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema valida documentos libres (map[string]any) contra un JSON Schema compilado.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

// MustSchema compila el schema o hace panic; se usa con schemas embebidos al arrancar.
func MustSchema(name, raw string) *Schema {
	s, err := NewSchema(name, raw)
	if err != nil {
		panic(err)
	}
	return s
}

func NewSchema(name, raw string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("cannot compile schema %s: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

func (s *Schema) Name() string { return s.name }

// Validate devuelve nil si doc cumple el schema.
func (s *Schema) Validate(doc any) error {
	if s == nil || s.schema == nil {
		return nil
	}
	res, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate %s: %w", s.name, err)
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
