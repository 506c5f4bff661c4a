// Package catalog loads migration identities from definition files.
//
// A definitions directory holds YAML files (*.yaml, *.yml) with a top-level
// migrations list, CUE files (*.cue) with a top-level migration struct keyed
// by id, or both:
//
//	migrations:
//	  - id: d7_node:article
//	    source_ids:
//	      - {name: nid, type: integer}
//	    destination_ids:
//	      - {name: nid, type: integer}
//
//	migration: "d7_node:article": {
//		source_ids: [{name: "nid", type: "integer"}]
//		destination_ids: [{name: "nid", type: "integer"}]
//	}
//
// Ids are unique across all files of a directory.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/idmap/internal/model"
)

// Error codes.
const (
	ErrCodeNotFound    = "E001" // Directory missing or unreadable
	ErrCodeNoFiles     = "E002" // No definition files
	ErrCodeParse       = "E003" // File could not be parsed
	ErrCodeInvalid     = "E004" // Definition fails validation
	ErrCodeDuplicateID = "E005" // Same id defined twice
)

// LoadError is a definition problem, positioned when the position is known.
type LoadError struct {
	Code    string
	Message string
	File    string
	Line    int
	Column  int
}

func (e *LoadError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Code, e.Message)
	case e.File != "":
		return fmt.Sprintf("%s: %s: %s", e.File, e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Definition is a loaded identity with the place it was defined.
type Definition struct {
	model.Identity
	File   string
	Line   int
	Column int
}

// Catalog is an immutable set of migration definitions.
type Catalog struct {
	defs []Definition
	byID map[string]int
}

// New builds a catalog from identities, validating each one.
func New(ids ...model.Identity) (*Catalog, error) {
	defs := make([]Definition, len(ids))
	for i, id := range ids {
		defs[i] = Definition{Identity: id}
	}
	c, errs := build(defs)
	return c, errors.Join(errs...)
}

// Load reads every definition file directly under dir. It returns the
// problems of all files at once; the catalog is nil when any is found.
func Load(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading %s: %v", dir, err)}
	}
	var yamlFiles []string
	hasCUE := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, filepath.Join(dir, e.Name()))
		case ".cue":
			hasCUE = true
		}
	}
	if len(yamlFiles) == 0 && !hasCUE {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no definition files in %s", dir)}
	}

	var (
		defs []Definition
		errs []error
	)
	for _, path := range yamlFiles {
		d, err := loadYAML(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		defs = append(defs, d...)
	}
	if hasCUE {
		d, err := loadCUE(dir)
		if err != nil {
			errs = append(errs, err)
		} else {
			defs = append(defs, d...)
		}
	}

	c, buildErrs := build(defs)
	errs = append(errs, buildErrs...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return c, nil
}

func build(defs []Definition) (*Catalog, []error) {
	var errs []error
	c := &Catalog{byID: make(map[string]int, len(defs))}
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			errs = append(errs, d.errorf(ErrCodeInvalid, "%v", err))
			continue
		}
		if i, dup := c.byID[d.ID]; dup {
			prev := c.defs[i]
			errs = append(errs, d.errorf(ErrCodeDuplicateID,
				"migration %q already defined at %s:%d", d.ID, prev.File, prev.Line))
			continue
		}
		c.byID[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, errs
}

func (d Definition) errorf(code, format string, args ...any) *LoadError {
	return &LoadError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		File:    d.File,
		Line:    d.Line,
		Column:  d.Column,
	}
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// IDs returns every migration id in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.defs))
	for _, d := range c.defs {
		ids = append(ids, d.ID)
	}
	sort.Strings(ids)
	return ids
}

// Definitions returns every definition in load order.
func (c *Catalog) Definitions() []Definition {
	return append([]Definition(nil), c.defs...)
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (Definition, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, false
	}
	return c.defs[i], true
}

// Identity returns the identity for id, or an error naming the known ids.
func (c *Catalog) Identity(id string) (model.Identity, error) {
	d, ok := c.Get(id)
	if !ok {
		return model.Identity{}, fmt.Errorf("unknown migration %q (known: %s)", id, strings.Join(c.IDs(), ", "))
	}
	return d.Identity, nil
}

// Siblings returns every loaded derivative of the same base migration as id,
// id included, in sorted id order. A migration that is not a derivative has
// no siblings.
func (c *Catalog) Siblings(id model.Identity) []model.Identity {
	base := id.BaseID()
	if base == "" {
		return nil
	}
	var out []model.Identity
	for _, d := range c.defs {
		if d.BaseID() == base {
			out = append(out, d.Identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
