// Package jsonfile serves a read-only directory snapshot from JSON files,
// for local development and deterministic test fixtures. It implements the
// directory read port only; rule and membership persistence needs a real
// backend.
package jsonfile

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

const ProviderKey = "jsonfile"

type Provider struct {
	dataDirectory string
}

func FromJson(data []byte) (*Provider, error) {
	cfg := struct {
		DataDirectory string `json:"dataDirectory"`
	}{}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return New(cfg.DataDirectory), nil
}

func New(dataDirectory string) *Provider {
	return &Provider{dataDirectory: dataDirectory}
}

// readInto decodes "<dataDirectory>/<dataType>.<name>.json" into dst. A
// missing file is an empty dataset, not an error.
func (p Provider) readInto(dataType, name string, dst interface{}) error {
	data, err := os.ReadFile(filepath.Join(p.dataDirectory, dataType+"."+name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
