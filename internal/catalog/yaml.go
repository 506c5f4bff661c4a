package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/idmap/internal/model"
)

type yamlFile struct {
	Migrations []yaml.Node `yaml:"migrations"`
}

func loadYAML(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), File: path}
	}

	var file yamlFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, &LoadError{Code: ErrCodeParse, Message: err.Error(), File: path}
	}

	defs := make([]Definition, 0, len(file.Migrations))
	for i := range file.Migrations {
		node := &file.Migrations[i]
		var id model.Identity
		if err := decodeStrict(node, &id); err != nil {
			return nil, &LoadError{
				Code:    ErrCodeParse,
				Message: fmt.Sprintf("migrations[%d]: %v", i, err),
				File:    path,
				Line:    node.Line,
				Column:  node.Column,
			}
		}
		defs = append(defs, Definition{Identity: id, File: path, Line: node.Line, Column: node.Column})
	}
	return defs, nil
}

// decodeStrict decodes node into v, rejecting unknown fields. yaml.Node.Decode
// does not honour KnownFields, so the node is re-encoded and decoded again.
func decodeStrict(node *yaml.Node, v any) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	if err := enc.Encode(node); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)
	return dec.Decode(v)
}
