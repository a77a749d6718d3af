package execution

import (
	"fmt"
	"strings"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

// EvalContext carries what expressions need besides the current record.
type EvalContext struct {
	Graph  *storage.Graph
	Params map[string]storage.Value
}

// Expression is evaluated against a record. Implementations must be safe to
// evaluate repeatedly; Clone returns an independent copy for cloned plans.
type Expression interface {
	Evaluate(ec *EvalContext, r *Record) (storage.Value, error)
	Clone() Expression
	String() string
}

// Constant always evaluates to the same value.
type Constant struct {
	Value storage.Value
}

// Const is shorthand for a Constant expression.
func Const(v storage.Value) *Constant { return &Constant{Value: v} }

func (c *Constant) Evaluate(*EvalContext, *Record) (storage.Value, error) { return c.Value, nil }
func (c *Constant) Clone() Expression { return &Constant{Value: c.Value} }
func (c *Constant) String() string { return c.Value.String() }

// Parameter reads a named query parameter.
type Parameter struct {
	Name string
}

// Param is shorthand for a Parameter expression.
func Param(name string) *Parameter { return &Parameter{Name: name} }

func (p *Parameter) Evaluate(ec *EvalContext, _ *Record) (storage.Value, error) {
	if ec != nil {
		if v, ok := ec.Params[p.Name]; ok {
			return v, nil
		}
	}
	return storage.Value{}, queryError("Parameter", "missing parameter $%s", p.Name)
}

func (p *Parameter) Clone() Expression { return &Parameter{Name: p.Name} }
func (p *Parameter) String() string { return "$" + p.Name }

// Variable reads a record slot. Node and edge slots evaluate to their id.
type Variable struct {
	Alias string
	slot  int
}

func (v *Variable) Evaluate(_ *EvalContext, r *Record) (storage.Value, error) {
	e := r.Get(v.slot)
	switch e.Type {
	case EntryScalar:
		return e.Value, nil
	case EntryNode:
		return storage.IntValue(int64(e.Node.ID)), nil
	case EntryEdge:
		return storage.IntValue(int64(e.Edge.ID)), nil
	default:
		return storage.NullValue(), nil
	}
}

func (v *Variable) Clone() Expression { return &Variable{Alias: v.Alias, slot: v.slot} }
func (v *Variable) String() string { return v.Alias }

// Property reads an attribute of the node or edge bound to a slot. Missing
// attributes and unbound slots evaluate to null.
type Property struct {
	Alias string
	Attr  string
	slot  int
}

func (p *Property) Evaluate(ec *EvalContext, r *Record) (storage.Value, error) {
	var attrs *storage.AttributeSet
	e := r.Get(p.slot)
	switch e.Type {
	case EntryNode:
		attrs = e.Node.Attributes
	case EntryEdge:
		attrs = e.Edge.Attributes
	case EntryScalar:
		// map values from LOAD CSV WITH HEADERS
		if v, ok := e.Value.MapGet(p.Attr); ok {
			return v, nil
		}
		return storage.NullValue(), nil
	default:
		return storage.NullValue(), nil
	}
	if ec == nil || ec.Graph == nil {
		return storage.NullValue(), nil
	}
	id, ok := ec.Graph.Schema().AttributeID(p.Attr)
	if !ok {
		return storage.NullValue(), nil
	}
	if v, ok := attrs.Get(id); ok {
		return v, nil
	}
	return storage.NullValue(), nil
}

func (p *Property) Clone() Expression { return &Property{Alias: p.Alias, Attr: p.Attr, slot: p.slot} }
func (p *Property) String() string { return p.Alias + "." + p.Attr }

// IDOf evaluates to the id of the node or edge bound to a slot.
type IDOf struct {
	Alias string
	slot  int
}

func (i *IDOf) Evaluate(_ *EvalContext, r *Record) (storage.Value, error) {
	e := r.Get(i.slot)
	switch e.Type {
	case EntryNode:
		return storage.IntValue(int64(e.Node.ID)), nil
	case EntryEdge:
		return storage.IntValue(int64(e.Edge.ID)), nil
	case EntryScalar:
		if e.Value.Type() == storage.TypeInteger {
			return e.Value, nil
		}
	}
	return storage.Value{}, queryError("id", "%s is not a node or relationship", i.Alias)
}

func (i *IDOf) Clone() Expression { return &IDOf{Alias: i.Alias, slot: i.slot} }
func (i *IDOf) String() string { return fmt.Sprintf("id(%s)", i.Alias) }

// List evaluates each item into an array value.
type List struct {
	Items []Expression
}

// ListOf is shorthand for a List expression.
func ListOf(items ...Expression) *List { return &List{Items: items} }

func (l *List) Evaluate(ec *EvalContext, r *Record) (storage.Value, error) {
	vals := make([]storage.Value, len(l.Items))
	for i, item := range l.Items {
		v, err := item.Evaluate(ec, r)
		if err != nil {
			return storage.Value{}, err
		}
		vals[i] = v
	}
	return storage.ArrayValue(vals...), nil
}

func (l *List) Clone() Expression {
	items := make([]Expression, len(l.Items))
	for i, item := range l.Items {
		items[i] = item.Clone()
	}
	return &List{Items: items}
}

func (l *List) String() string {
	parts := make([]string, len(l.Items))
	for i, item := range l.Items {
		parts[i] = item.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Vecf32 converts its argument into a float32 vector. Arrays of numbers and
// strings accepted by storage.ParseVector convert; null stays null.
type Vecf32 struct {
	Arg Expression
}

// ToVector is shorthand for a Vecf32 expression.
func ToVector(arg Expression) *Vecf32 { return &Vecf32{Arg: arg} }

func (v *Vecf32) Evaluate(ec *EvalContext, r *Record) (storage.Value, error) {
	in, err := v.Arg.Evaluate(ec, r)
	if err != nil {
		return storage.Value{}, err
	}
	switch in.Type() {
	case storage.TypeNull, storage.TypeVectorF32:
		return in, nil
	case storage.TypeString:
		s, _ := in.AsString()
		vec, err := storage.ParseVector(s)
		if err != nil {
			return storage.Value{}, &QueryError{Op: "vecf32", Msg: "invalid vector", Err: err}
		}
		return storage.VectorValue(vec), nil
	case storage.TypeArray:
		items, _ := in.AsArray()
		vec := make([]float32, len(items))
		for i, item := range items {
			f, ok := item.AsDouble()
			if !ok {
				return storage.Value{}, queryError("vecf32", "element %d is %s, expected a number", i, item.Type())
			}
			vec[i] = float32(f)
		}
		return storage.VectorValue(vec), nil
	}
	return storage.Value{}, queryError("vecf32", "cannot convert %s to a vector", in.Type())
}

func (v *Vecf32) Clone() Expression { return &Vecf32{Arg: cloneExpr(v.Arg)} }
func (v *Vecf32) String() string { return fmt.Sprintf("vecf32(%s)", v.Arg) }

func cloneExpr(e Expression) Expression {
	if e == nil {
		return nil
	}
	return e.Clone()
}
