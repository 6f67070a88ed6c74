// Package specfile reads instances written as YAML or JSON InstanceSpec documents.
package specfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"evrptw/internal/apperr"
	"evrptw/internal/integrations"
	"evrptw/internal/model"
)

var _ integrations.InstanceSource = Adapter{}

type Adapter struct{}

func (Adapter) Name() string { return "spec-file" }

// Load decodes ref by extension; the file name stands in for a missing name.
func (Adapter) Load(ctx context.Context, ref string) (model.InstanceSpec, error) {
	b, err := os.ReadFile(ref)
	if err != nil {
		return model.InstanceSpec{}, apperr.Wrap(err, apperr.CodeInvalidInstance, "read instance file")
	}
	spec, err := Decode(b, filepath.Ext(ref))
	if err != nil {
		return spec, err
	}
	if spec.Name == "" {
		spec.Name = strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))
	}
	return spec, nil
}

// Decode parses b as JSON when ext is .json and as YAML otherwise.
func Decode(b []byte, ext string) (model.InstanceSpec, error) {
	var spec model.InstanceSpec
	var err error
	if strings.EqualFold(ext, ".json") {
		err = json.Unmarshal(b, &spec)
	} else {
		err = yaml.Unmarshal(b, &spec)
	}
	if err != nil {
		return model.InstanceSpec{}, apperr.Wrap(err, apperr.CodeInvalidInstance, "decode instance file")
	}
	return spec, nil
}

// Supports reports whether ref has an extension this adapter reads.
func Supports(ref string) bool {
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
