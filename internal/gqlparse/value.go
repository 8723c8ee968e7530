package gqlparse

// ValueKind tags an argument value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueString
	ValueBool
	ValueEnum
	ValueList
	ValueObject
	// ValueVar is a $name variable reference, resolved at generation time.
	ValueVar
)

// Value is a normalized GraphQL argument value. Object fields keep their
// source order so that generated SQL and its parameter sequence stay
// deterministic for a given query text.
type Value struct {
	Kind   ValueKind
	Int    int64
	Float  float64
	Str    string // string literal, enum name, or variable name
	Bool   bool
	List   []Value
	Fields []ObjectField
}

// ObjectField is one entry of an object value.
type ObjectField struct {
	Name  string
	Value Value
}

// Field returns the named object field, if present.
func (v Value) Field(name string) (Value, bool) {
	for _, f := range v.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Argument is one named argument of a selection.
type Argument struct {
	Name  string
	Value Value
}
