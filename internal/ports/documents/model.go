package documents

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Campos de sistema presentes en todo documento.
const (
	FieldKey  = "_key"
	FieldID   = "_id"
	FieldRev  = "_rev"
	FieldFrom = "_from"
	FieldTo   = "_to"
)

// Document es un mapa campo -> valor, tal como viaja por JSON.
type Document map[string]any

// Meta es lo que el store asigna en cada escritura.
type Meta struct {
	Key string `json:"_key"`
	ID  string `json:"_id"`
	Rev string `json:"_rev"`
}

// Index declara un índice único sobre uno o más campos de primer nivel.
type Index struct {
	Name   string
	Fields []string
}

type CollectionSpec struct {
	Name   string
	Unique []Index

	// Edge: los documentos deben traer _from y _to.
	Edge bool
}

func (d Document) Key() string { return d.String(FieldKey) }
func (d Document) ID() string  { return d.String(FieldID) }
func (d Document) Rev() string { return d.String(FieldRev) }

// String devuelve el campo como string, o "" si no existe o no es string.
func (d Document) String(field string) string {
	if d == nil {
		return ""
	}
	s, _ := d[field].(string)
	return s
}

// Clone hace una copia profunda (mapas y slices anidados).
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Document(t).Clone())
	case Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// WithoutSystemFields quita _key/_id/_rev. _from y _to se conservan porque son datos del edge.
func (d Document) WithoutSystemFields() Document {
	out := d.Clone()
	if out == nil {
		out = Document{}
	}
	delete(out, FieldKey)
	delete(out, FieldID)
	delete(out, FieldRev)
	return out
}

// ApplyMeta copia key/id/rev asignados por el store al documento.
func (d Document) ApplyMeta(m Meta) Document {
	d[FieldKey] = m.Key
	d[FieldID] = m.ID
	d[FieldRev] = m.Rev
	return d
}

// Matches: todos los campos del ejemplo son iguales (comparación de primer nivel).
func (d Document) Matches(example Document) bool {
	for k, want := range example {
		got, ok := d[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}

// Solo escalares; ejemplos con objetos o arrays nunca matchean.
func equalValue(a, b any) bool {
	if !isScalar(a) || !isScalar(b) {
		return false
	}
	return normalizeNumber(a) == normalizeNumber(b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any, Document:
		return false
	default:
		return true
	}
}

// JSON decodifica números como float64; los ejemplos construidos en Go pueden traer int.
func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// IDFor arma el _id "<collection>/<key>".
func IDFor(collection, key string) string {
	return collection + "/" + key
}

// SplitID separa un _id en colección y key.
func SplitID(id string) (collection, key string, ok bool) {
	collection, key, ok = strings.Cut(id, "/")
	if !ok || collection == "" || key == "" {
		return "", "", false
	}
	return collection, key, true
}

// NewKey genera una key para documentos que no la traen.
func NewKey() string { return uuid.NewString() }

// Una key tiene que poder viajar como un único segmento de URL.
var keyRe = regexp.MustCompile(`^[A-Za-z0-9_\-:.@()+,=;$!*'%]{1,254}$`)

func ValidKey(key string) bool { return keyRe.MatchString(key) }

// CheckKey es lo que cada store llama en Save.
func CheckKey(collection, key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%s: key %q: %w", collection, key, ErrInvalidKey)
	}
	return nil
}

// NewRevision genera un token de revisión opaco.
func NewRevision() string {
	return "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// UniqueValues devuelve los valores del índice para el documento, o ok=false
// si falta algún campo (un documento sin el campo no participa del índice).
func UniqueValues(d Document, idx Index) ([]any, bool) {
	out := make([]any, 0, len(idx.Fields))
	for _, f := range idx.Fields {
		v, ok := d[f]
		if !ok || v == nil {
			return nil, false
		}
		out = append(out, normalizeNumber(v))
	}
	return out, true
}
