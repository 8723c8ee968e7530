package sqlgen

import (
	"fmt"
	"time"

	graerr "github.com/simple-platform/grasql-sub001/gqlerrors"
	"github.com/simple-platform/grasql-sub001/internal/gqlparse"
	"github.com/simple-platform/grasql-sub001/schema"
)

// resolveValue converts a parsed argument value into a bindable parameter.
// Variable references are looked up in the request's variables map; colType
// is the SQL type tag of the column the value binds against, TypeUnknown
// when no column context exists (pagination values and similar).
func (g *generator) resolveValue(v gqlparse.Value, colType schema.ColumnType) (any, error) {
	switch v.Kind {
	case gqlparse.ValueVar:
		val, ok := g.vars[v.Str]
		if !ok {
			return nil, &graerr.GenError{Kind: graerr.GenMissingVariable, Name: v.Str}
		}
		if err := checkVariableType(v.Str, val, colType); err != nil {
			return nil, err
		}
		return val, nil
	case gqlparse.ValueNull:
		return nil, nil
	case gqlparse.ValueInt:
		return v.Int, nil
	case gqlparse.ValueFloat:
		return v.Float, nil
	case gqlparse.ValueString, gqlparse.ValueEnum:
		return v.Str, nil
	case gqlparse.ValueBool:
		return v.Bool, nil
	case gqlparse.ValueList:
		out := make([]any, 0, len(v.List))
		for _, item := range v.List {
			converted, err := g.resolveValue(item, colType)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	}
	return nil, &graerr.GenError{
		Kind:    graerr.GenInvalidArgument,
		Message: "object value where a scalar was expected",
	}
}

// checkVariableType verifies a host-supplied variable value against a
// column's SQL type tag. TypeUnknown and TypeJSON are exempt, and nil always
// passes (it binds as NULL).
func checkVariableType(name string, val any, colType schema.ColumnType) error {
	if val == nil || colType == schema.TypeUnknown || colType == schema.TypeJSON {
		return nil
	}
	if list, ok := val.([]any); ok {
		for _, item := range list {
			if err := checkVariableType(name, item, colType); err != nil {
				return err
			}
		}
		return nil
	}

	ok := false
	switch colType {
	case schema.TypeInteger:
		switch n := val.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			ok = true
		case float64:
			// JSON-decoded variables arrive as float64; integral values pass.
			ok = n == float64(int64(n))
		case float32:
			ok = n == float32(int64(n))
		}
	case schema.TypeFloat:
		switch val.(type) {
		case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			ok = true
		}
	case schema.TypeString, schema.TypeUUID:
		_, ok = val.(string)
	case schema.TypeBoolean:
		_, ok = val.(bool)
	case schema.TypeTimestamp:
		switch val.(type) {
		case string, time.Time:
			ok = true
		}
	}
	if !ok {
		return &graerr.GenError{
			Kind:    graerr.GenVariableTypeMismatch,
			Name:    name,
			Message: fmt.Sprintf("value of type %T is not assignable to a %s column", val, colType),
		}
	}
	return nil
}

// intArg coerces a pagination value to an integer.
func (g *generator) intArg(name string, v gqlparse.Value) (int64, error) {
	val, err := g.resolveValue(v, schema.TypeUnknown)
	if err != nil {
		return 0, err
	}
	switch n := val.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, &graerr.GenError{
		Kind:    graerr.GenInvalidArgument,
		Name:    name,
		Message: fmt.Sprintf("argument %q must be an integer", name),
	}
}

// boolArg coerces an _is_null operand to a boolean.
func (g *generator) boolArg(name string, v gqlparse.Value) (bool, error) {
	val, err := g.resolveValue(v, schema.TypeUnknown)
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, &graerr.GenError{
			Kind:    graerr.GenInvalidArgument,
			Name:    name,
			Message: fmt.Sprintf("operator %q takes a boolean operand", name),
		}
	}
	return b, nil
}
