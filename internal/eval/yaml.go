package eval

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/groundwork-io/groundwork/internal/ir"
)

func loadYAML(path string) (*ir.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg ir.Config
	if err := dec.Decode(&cfg); err != nil {
		// an empty document is a valid, empty configuration
		if errors.Is(err, io.EOF) {
			return &ir.Config{}, nil
		}
		return nil, &ParseError{File: path, Err: err}
	}
	return &cfg, nil
}
