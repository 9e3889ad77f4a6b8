// Package verdict turns raw judge output into a validated EvaluationResult.
package verdict

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/felixgeelhaar/nahw/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed evaluation_result.schema.json
var resultSchemaJSON []byte

const (
	resultSchemaURL = "https://nahw.local/schemas/evaluation_result.json"
	snippetRadius   = 20
)

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func resultSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(resultSchemaURL, bytes.NewReader(resultSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add result schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(resultSchemaURL)
	})
	return compiledSchema, compileErr
}

// Parse converts raw model output into an EvaluationResult.
//
// The output may be wrapped in a Markdown code fence. Anything that is not
// a single JSON object yields *domain.ParseError; an object that breaks the
// result contract yields *domain.SchemaError naming the offending field.
// Extra fields are ignored. Values are never coerced or defaulted.
func Parse(raw string) (*domain.EvaluationResult, error) {
	text := StripFence(strings.TrimSpace(raw))
	text = strings.TrimSpace(text)

	doc, err := decode(text)
	if err != nil {
		return nil, err
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, &domain.SchemaError{Field: "$", Reason: fmt.Sprintf("expected a JSON object, got %s", jsonType(doc))}
	}

	for _, field := range domain.ResultFields {
		if _, ok := obj[field]; !ok {
			return nil, &domain.SchemaError{Field: field, Reason: "missing required field"}
		}
	}

	schema, err := resultSchema()
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, schemaError(err)
	}

	// The schema accepts 90.0 as an integer; the contract wants an integer literal.
	if n, ok := obj[domain.FieldScore].(json.Number); ok && strings.ContainsAny(n.String(), ".eE") {
		return nil, &domain.SchemaError{Field: domain.FieldScore, Reason: fmt.Sprintf("expected integer, got %s", n)}
	}

	var result domain.EvaluationResult
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &domain.SchemaError{Field: typeErr.Field, Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value)}
		}
		return nil, fmt.Errorf("decode result: %w", err)
	}

	return &result, nil
}

func decode(text string) (any, error) {
	if text == "" {
		return nil, &domain.ParseError{Offset: 0, Snippet: "", Err: errors.New("empty output")}
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		offset := dec.InputOffset()
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			offset = syntaxErr.Offset
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			offset = int64(len(text))
		}
		return nil, &domain.ParseError{Offset: offset, Snippet: snippet(text, offset), Err: err}
	}

	// Anything after the first value is an error, not ignorable noise
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		offset := dec.InputOffset()
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			offset = syntaxErr.Offset
		}
		return nil, &domain.ParseError{Offset: offset, Snippet: snippet(text, offset), Err: errors.New("unexpected data after JSON value")}
	}

	return doc, nil
}

// snippet returns up to snippetRadius bytes either side of offset, widened
// to rune boundaries.
func snippet(text string, offset int64) string {
	pos := int(offset)
	if pos > len(text) {
		pos = len(text)
	}
	if pos < 0 {
		pos = 0
	}

	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}

	end := pos + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	return text[start:end]
}

// schemaError reports the deepest validation failure, which names the field
func schemaError(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &domain.SchemaError{Field: "$", Reason: err.Error()}
	}

	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	return &domain.SchemaError{
		Field:  fieldFromLocation(leaf.InstanceLocation),
		Reason: leaf.Message,
	}
}

// fieldFromLocation turns a JSON pointer such as "/correct_points/2" into
// the top-level field name.
func fieldFromLocation(loc string) string {
	loc = strings.TrimPrefix(loc, "/")
	if loc == "" {
		return "$"
	}
	if i := strings.IndexByte(loc, '/'); i >= 0 {
		return loc[:i]
	}
	return loc
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
