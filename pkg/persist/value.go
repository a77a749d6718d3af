package persist

import (
	"fmt"

	"github.com/orneryd/matrixgraph/pkg/storage"
)

func (w *writer) value(v storage.Value) error {
	w.uvarint(uint64(v.Type()))
	switch v.Type() {
	case storage.TypeNull:
	case storage.TypeBoolean:
		b, _ := v.AsBool()
		if b {
			w.varint(1)
		} else {
			w.varint(0)
		}
	case storage.TypeInteger:
		n, _ := v.AsInt()
		w.varint(n)
	case storage.TypeDouble:
		f, _ := v.AsDouble()
		w.double(f)
	case storage.TypeString:
		s, _ := v.AsString()
		w.str(s)
	case storage.TypeArray:
		items, _ := v.AsArray()
		w.uvarint(uint64(len(items)))
		for _, item := range items {
			if err := w.value(item); err != nil {
				return err
			}
		}
	case storage.TypePoint:
		lat, lon, _ := v.AsPoint()
		w.double(lat)
		w.double(lon)
	case storage.TypeVectorF32:
		vec, _ := v.AsVector()
		w.uvarint(uint64(len(vec)))
		for _, f := range vec {
			w.float(f)
		}
	case storage.TypeMap:
		keys, vals, _ := v.AsMap()
		w.uvarint(uint64(len(keys)))
		for i, k := range keys {
			w.str(k)
			if err := w.value(vals[i]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("cannot encode value of type %s", v.Type())
	}
	return nil
}

func (r *reader) value() storage.Value {
	tag := storage.ValueType(r.uvarint())
	if r.err != nil {
		return storage.Value{}
	}
	switch tag {
	case storage.TypeNull:
		return storage.NullValue()
	case storage.TypeBoolean:
		return storage.BoolValue(r.varint() != 0)
	case storage.TypeInteger:
		return storage.IntValue(r.varint())
	case storage.TypeDouble:
		return storage.DoubleValue(r.double())
	case storage.TypeString:
		return storage.StringValue(r.str())
	case storage.TypeArray:
		items := make([]storage.Value, r.count())
		for i := range items {
			items[i] = r.value()
		}
		return storage.ArrayValue(items...)
	case storage.TypePoint:
		lat := r.double()
		return storage.PointValue(lat, r.double())
	case storage.TypeVectorF32:
		vec := make([]float32, r.count())
		for i := range vec {
			vec[i] = r.float()
		}
		return storage.VectorValue(vec)
	case storage.TypeMap:
		n := r.count()
		m := make(map[string]storage.Value, n)
		for range n {
			k := r.str()
			m[k] = r.value()
		}
		return storage.MapValue(m)
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: unknown value type %d at offset %d", ErrCorrupt, tag, r.off)
		}
		return storage.Value{}
	}
}

func (w *writer) attributes(attrs *storage.AttributeSet) error {
	n := attrs.Count()
	w.uvarint(uint64(n))
	for i := range n {
		a := attrs.At(i)
		w.uvarint(uint64(a.ID))
		if err := w.value(a.Value); err != nil {
			return fmt.Errorf("attribute %d: %w", a.ID, err)
		}
	}
	return nil
}

func (r *reader) attributes() *storage.AttributeSet {
	n := r.count()
	attrs := make([]storage.Attribute, 0, n)
	for range n {
		id := storage.AttributeID(r.uvarint())
		attrs = append(attrs, storage.Attribute{ID: id, Value: r.value()})
	}
	return storage.NewAttributeSet(attrs...)
}
