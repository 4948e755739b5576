package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/notesync/pkg/core"
)

// Serializer defines how to read and write the fields of one document file.
type Serializer interface {
	// Parse reads from r and returns the document fields.
	Parse(r io.Reader) (core.Fields, error)
	// Serialize converts the fields to bytes.
	Serialize(fields core.Fields) ([]byte, error)
}

// DefaultSerializers returns the standard set of serializers keyed by extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
		".json": JSONSerializer{},
	}
}

// --- YAML Serializer ---

// YAMLSerializer stores a document as a flat YAML mapping.
type YAMLSerializer struct{}

func (YAMLSerializer) Parse(r io.Reader) (core.Fields, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	fields := core.Fields{}
	if len(bytes.TrimSpace(data)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("invalid yaml: %w", err)
	}
	return fields, nil
}

func (YAMLSerializer) Serialize(fields core.Fields) ([]byte, error) {
	if fields == nil {
		fields = core.Fields{}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any(fields)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// --- JSON Serializer ---

// JSONSerializer stores a document as a JSON object.
type JSONSerializer struct{}

func (JSONSerializer) Parse(r io.Reader) (core.Fields, error) {
	fields := core.Fields{}
	if err := json.NewDecoder(r).Decode(&fields); err != nil {
		if err == io.EOF {
			return fields, nil
		}
		return nil, fmt.Errorf("invalid json: %w", err)
	}
	return fields, nil
}

func (JSONSerializer) Serialize(fields core.Fields) ([]byte, error) {
	if fields == nil {
		fields = core.Fields{}
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
