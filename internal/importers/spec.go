// Package importers turns declarative importer specs into registered
// core.ImporterDefinitions whose callbacks persist records through a
// sink.Writer.
//
// Specs come from the built-in set (see Students) or from a YAML file:
//
//	importers:
//	  - name: teachers
//	    table: teachers
//	    batch_size: 200
//	    attributes:
//	      - key: email
//	        labels: [Email, E-Mail, mail]
//	        required: true
//	        normalize: [trim, lower]
package importers

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// FileSpec is the top level of an importer definitions file.
type FileSpec struct {
	Importers []Spec `yaml:"importers"`
}

// Spec declares one importer.
type Spec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Table receives the imported rows. Defaults to Name.
	Table      string          `yaml:"table"`
	BatchSize  int             `yaml:"batch_size"`
	Attributes []AttributeSpec `yaml:"attributes"`
}

// AttributeSpec extends core.AttributeSpec with cell normalizers applied
// before a value is written.
type AttributeSpec struct {
	core.AttributeSpec `yaml:",inline"`
	Normalize          []string `yaml:"normalize"`
}

// TableName returns the destination table.
func (s Spec) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Name
}

// Validate checks the parts of a spec the core definition does not: table
// and column names and normalizer names.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &core.ConfigurationError{Reason: "importer name is empty"}
	}
	if err := sink.CheckIdentifiers(s.TableName()); err != nil {
		return &core.ConfigurationError{Importer: s.Name, Reason: "bad table name", Err: err}
	}
	for _, a := range s.Attributes {
		if err := sink.CheckIdentifiers(a.Key); err != nil {
			return &core.ConfigurationError{Importer: s.Name, Reason: "bad attribute key", Err: err}
		}
		if a.Key == sink.RunIDColumn || a.Key == sink.ImportedAtColumn || a.Key == "id" {
			return &core.ConfigurationError{Importer: s.Name, Reason: fmt.Sprintf("attribute key %q is reserved", a.Key)}
		}
		for _, n := range a.Normalize {
			if _, ok := normalizers[n]; !ok {
				return &core.ConfigurationError{
					Importer: s.Name,
					Reason:   fmt.Sprintf("attribute %q: unknown normalizer %q", a.Key, n),
				}
			}
		}
	}
	return nil
}

// Load decodes a definitions file. Unknown fields are rejected.
func Load(r io.Reader) ([]Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fs FileSpec
	if err := dec.Decode(&fs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode importer definitions: %w", err)
	}
	for _, s := range fs.Importers {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return fs.Importers, nil
}

// LoadFile reads the definitions file at path.
func LoadFile(path string) ([]Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open importer definitions: %w", err)
	}
	defer f.Close()

	specs, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}
