package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/idmap/internal/model"
)

// loadCUE builds the CUE package in dir and reads its migration struct.
func loadCUE(dir string) ([]Definition, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeParse, Message: "no CUE instances loaded", File: dir}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, cueError(inst.Err, dir)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, cueError(err, dir)
	}

	migrations := value.LookupPath(cue.ParsePath("migration"))
	if !migrations.Exists() {
		return nil, nil
	}
	iter, err := migrations.Fields()
	if err != nil {
		return nil, cueError(err, dir)
	}

	var defs []Definition
	for iter.Next() {
		v := iter.Value()
		pos := v.Pos()
		id, err := compileIdentity(iter.Selector().Unquoted(), v)
		if err != nil {
			le := cueError(err, dir)
			if le.Line == 0 && pos.IsValid() {
				le.File, le.Line, le.Column = pos.Filename(), pos.Line(), pos.Column()
			}
			return nil, le
		}
		defs = append(defs, Definition{
			Identity: id,
			File:     pos.Filename(),
			Line:     pos.Line(),
			Column:   pos.Column(),
		})
	}
	return defs, nil
}

func compileIdentity(id string, v cue.Value) (model.Identity, error) {
	ident := model.Identity{ID: id}

	var err error
	if ident.SourceIDs, err = compileFields(v.LookupPath(cue.ParsePath("source_ids"))); err != nil {
		return ident, err
	}
	if ident.DestinationIDs, err = compileFields(v.LookupPath(cue.ParsePath("destination_ids"))); err != nil {
		return ident, err
	}
	if track := v.LookupPath(cue.ParsePath("track_last_imported")); track.Exists() {
		if ident.TrackLastImported, err = track.Bool(); err != nil {
			return ident, err
		}
	}
	return ident, nil
}

// compileFields reads a list of {name, type, settings?} structs. A missing
// list yields no fields and is reported by validation.
func compileFields(v cue.Value) ([]model.FieldSpec, error) {
	if !v.Exists() {
		return nil, nil
	}
	list, err := v.List()
	if err != nil {
		return nil, err
	}

	var fields []model.FieldSpec
	for list.Next() {
		item := list.Value()
		name, err := item.LookupPath(cue.ParsePath("name")).String()
		if err != nil {
			return nil, err
		}
		typ, err := item.LookupPath(cue.ParsePath("type")).String()
		if err != nil {
			return nil, err
		}
		f := model.FieldSpec{Name: name, Type: model.SemanticType(typ)}

		if settings := item.LookupPath(cue.ParsePath("settings")); settings.Exists() {
			f.Settings = map[string]any{}
			it, err := settings.Fields()
			if err != nil {
				return nil, err
			}
			for it.Next() {
				s, err := settingValue(it.Value())
				if err != nil {
					return nil, err
				}
				f.Settings[it.Selector().Unquoted()] = s
			}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func settingValue(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.IntKind:
		n, err := v.Int64()
		return int(n), err
	case cue.BoolKind:
		return v.Bool()
	case cue.StringKind:
		return v.String()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	default:
		return nil, fmt.Errorf("setting %s: unsupported kind %v", v.Path(), v.IncompleteKind())
	}
}

// cueError converts the first CUE error into a positioned LoadError.
func cueError(err error, dir string) *LoadError {
	le := &LoadError{Code: ErrCodeParse, Message: err.Error(), File: dir}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return le
	}
	le.Message = errs[0].Error()
	if positions := cueerrors.Positions(errs[0]); len(positions) > 0 && positions[0].IsValid() {
		le.File = positions[0].Filename()
		le.Line = positions[0].Line()
		le.Column = positions[0].Column()
	}
	return le
}
