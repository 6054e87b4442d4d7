package platform

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is a set of endpoint overrides keyed by platform name:
//
//	platforms:
//	  graph:
//	    base_url: https://graph.facebook.com/v19.0
//	    secondary:
//	      replies: comments?filter=stream&ids={ids}
type Catalog struct {
	Platforms map[string]Endpoints `yaml:"platforms"`
}

// LoadCatalog decodes a YAML catalog.
func LoadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return c, nil
}

// LoadCatalogFile reads a YAML catalog from path.
func LoadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}
