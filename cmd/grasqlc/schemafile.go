package main

import (
	"fmt"
	"os"

	"github.com/jinzhu/inflection"
	"gopkg.in/yaml.v3"

	"github.com/simple-platform/grasql-sub001/schema"
)

// SchemaFile is a YAML description of a relational schema, standing in for
// the live catalog a real host would resolve against.
type SchemaFile struct {
	Tables []TableDef `yaml:"tables"`
}

// TableDef describes one table.
type TableDef struct {
	Schema        string            `yaml:"schema"`
	Name          string            `yaml:"name"`
	Columns       []ColumnDef       `yaml:"columns"`
	Relationships []RelationshipDef `yaml:"relationships"`
}

// ColumnDef describes one column.
type ColumnDef struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
	Default  any    `yaml:"default"`
}

// RelationshipDef describes one outgoing relationship of a table.
type RelationshipDef struct {
	Field             string   `yaml:"field"`
	Target            string   `yaml:"target"`
	Type              string   `yaml:"type"` // has_many, belongs_to, many_to_many
	SourceColumns     []string `yaml:"source_columns"`
	TargetColumns     []string `yaml:"target_columns"`
	JoinTable         string   `yaml:"join_table"`
	JoinSourceColumns []string `yaml:"join_source_columns"`
	JoinTargetColumns []string `yaml:"join_target_columns"`
}

func loadSchemaFile(path string) (*SchemaFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	var sf SchemaFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse schema file %q: %w", path, err)
	}
	return &sf, nil
}

// fileResolver answers resolver lookups from a loaded schema file. Root
// field names match table names directly or through pluralization, so
// `user` finds a `users` table.
type fileResolver struct {
	tables map[string]*TableDef
}

func newFileResolver(sf *SchemaFile) *fileResolver {
	r := &fileResolver{tables: make(map[string]*TableDef, len(sf.Tables))}
	for i := range sf.Tables {
		t := &sf.Tables[i]
		r.tables[t.Name] = t
	}
	return r
}

func (r *fileResolver) findTable(name string) (*TableDef, bool) {
	if t, ok := r.tables[name]; ok {
		return t, true
	}
	if t, ok := r.tables[inflection.Plural(name)]; ok {
		return t, true
	}
	if t, ok := r.tables[inflection.Singular(name)]; ok {
		return t, true
	}
	return nil, false
}

func (r *fileResolver) table(t *TableDef) schema.Table {
	return schema.Table{Schema: t.Schema, Name: t.Name}
}

// Funcs builds the capability set consumed by the engine.
func (r *fileResolver) Funcs() schema.ResolverFuncs {
	return schema.ResolverFuncs{
		ResolveTable: func(name string, _ any) (schema.Table, bool, error) {
			t, ok := r.findTable(name)
			if !ok {
				return schema.Table{}, false, nil
			}
			return r.table(t), true, nil
		},
		ResolveRelationship: func(field string, parent schema.Table, _ any) (schema.Relationship, bool, error) {
			pt, ok := r.tables[parent.Name]
			if !ok {
				return schema.Relationship{}, false, nil
			}
			for _, rd := range pt.Relationships {
				if rd.Field != field {
					continue
				}
				tgt, ok := r.findTable(rd.Target)
				if !ok {
					return schema.Relationship{}, false, fmt.Errorf("relationship %q targets unknown table %q", field, rd.Target)
				}
				rel := schema.Relationship{
					Source:        parent,
					Target:        r.table(tgt),
					SourceColumns: rd.SourceColumns,
					TargetColumns: rd.TargetColumns,
				}
				switch rd.Type {
				case "belongs_to":
					rel.Cardinality = schema.BelongsTo
				case "many_to_many":
					rel.Cardinality = schema.ManyToMany
					jt, ok := r.findTable(rd.JoinTable)
					if !ok {
						return schema.Relationship{}, false, fmt.Errorf("relationship %q uses unknown join table %q", field, rd.JoinTable)
					}
					join := r.table(jt)
					rel.JoinTable = &join
					rel.JoinSourceColumns = rd.JoinSourceColumns
					rel.JoinTargetColumns = rd.JoinTargetColumns
				default:
					rel.Cardinality = schema.HasMany
				}
				return rel, true, nil
			}
			return schema.Relationship{}, false, nil
		},
		ResolveColumns: func(table schema.Table, _ any) ([]string, error) {
			t, ok := r.tables[table.Name]
			if !ok {
				return nil, fmt.Errorf("unknown table %q", table.Key())
			}
			names := make([]string, len(t.Columns))
			for i, c := range t.Columns {
				names[i] = c.Name
			}
			return names, nil
		},
		ResolveColumnAttribute: func(attr schema.ColumnAttribute, column string, table schema.Table, _ any) (any, error) {
			t, ok := r.tables[table.Name]
			if !ok {
				return nil, fmt.Errorf("unknown table %q", table.Key())
			}
			for _, c := range t.Columns {
				if c.Name != column {
					continue
				}
				switch attr {
				case schema.AttrSQLType:
					return c.Type, nil
				case schema.AttrRequired:
					return c.Required, nil
				case schema.AttrDefault:
					return c.Default, nil
				}
				return nil, fmt.Errorf("unknown attribute %q", attr)
			}
			return nil, fmt.Errorf("unknown column %q of table %q", column, table.Key())
		},
	}
}
