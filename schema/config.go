package schema

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"factorm/term"
)

// Schema declarations can be loaded from a YAML document instead of code,
// which keeps fact shapes in config next to the solver program they feed:
//
//	schemas:
//	  - name: assignment
//	    sign: positive
//	    slots:
//	      - {name: item, kind: constant}
//	      - {name: driver, kind: constant, indexed: true}
//	      - {name: time, kind: integer, default: 0}
//
// Slot kinds name the base fields of package term. Restricted, combined and
// nested fields have no config syntax; declare those schemas in code.

type declFile struct {
	Schemas []schemaDecl `yaml:"schemas"`
}

type schemaDecl struct {
	Name  string     `yaml:"name"`
	Sign  string     `yaml:"sign"`
	Tuple bool       `yaml:"tuple"`
	Slots []slotDecl `yaml:"slots"`
}

type slotDecl struct {
	Name    string      `yaml:"name"`
	Kind    string      `yaml:"kind"`
	Indexed bool        `yaml:"indexed"`
	Default interface{} `yaml:"default"`
	HasDef  bool        `yaml:"-"`
}

func (d *slotDecl) UnmarshalYAML(node *yaml.Node) error {
	type plain slotDecl
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*d = slotDecl(p)
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "default" {
			d.HasDef = true
		}
	}
	return nil
}

var fieldKinds = map[string]term.Field{
	"integer":  term.Integer,
	"string":   term.String,
	"constant": term.Constant,
	"float":    term.Float,
	"bool":     term.Bool,
	"time":     term.Time,
	"duration": term.Duration,
}

// LoadDefinitions parses YAML schema declarations into a registry, in
// document order. Definition mistakes surface as *DefinitionError exactly as
// they would from schema.New.
func LoadDefinitions(data []byte) (*Registry, error) {
	var file declFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("schema declarations: %w", err)
	}
	if len(file.Schemas) == 0 {
		return nil, fmt.Errorf("schema declarations: no schemas declared")
	}

	reg := &Registry{}
	for _, decl := range file.Schemas {
		slots := make([]Slot, 0, len(decl.Slots))
		for _, sd := range decl.Slots {
			field, ok := fieldKinds[sd.Kind]
			if !ok {
				return nil, &DefinitionError{
					Schema: decl.Name,
					Slot:   sd.Name,
					Reason: fmt.Sprintf("unknown field kind %q", sd.Kind),
				}
			}
			slot := Slot{Name: sd.Name, Field: field, Indexed: sd.Indexed}
			if sd.HasDef {
				v, err := normalizeDefault(field, sd.Default)
				if err != nil {
					return nil, &DefinitionError{Schema: decl.Name, Slot: sd.Name, Reason: err.Error()}
				}
				slot = slot.WithDefault(v)
			}
			slots = append(slots, slot)
		}

		var opts []Option
		switch decl.Sign {
		case "", "either":
		case "positive":
			opts = append(opts, WithSignPolicy(PositiveOnly))
		case "negative":
			opts = append(opts, WithSignPolicy(NegativeOnly))
		default:
			return nil, &DefinitionError{Schema: decl.Name, Reason: fmt.Sprintf("unknown sign policy %q", decl.Sign)}
		}
		if decl.Tuple {
			opts = append(opts, AsTuple())
		}

		s, err := New(decl.Name, slots, opts...)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// normalizeDefault runs a declared default through the field codec once so a
// bad default fails at load time, and widens YAML's int to the field's
// native value type.
func normalizeDefault(field term.Field, v interface{}) (interface{}, error) {
	if n, ok := v.(int); ok {
		v = int64(n)
	}
	t, err := field.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("bad default: %v", err)
	}
	decoded, err := field.Decode(t)
	if err != nil {
		return nil, fmt.Errorf("bad default: %v", err)
	}
	return decoded, nil
}
