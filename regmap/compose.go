package regmap

import (
	"sort"
)

// FieldValue is a value destined for (or read from) a field.
type FieldValue struct {
	Field *Field
	Value int64
}

// RegisterWord is a full 32-bit register value.
// Mask holds the bits covered by fields that were explicitly written.
type RegisterWord struct {
	Register *Register
	Address  uint32
	Value    uint32
	Mask     uint32
}

// Compose merges field values into register words on top of each register's
// reset value. Values are clamped the same way Encode clamps them; read-only
// fields are skipped. The result is sorted by address.
func Compose(values []FieldValue) []RegisterWord {
	words := make(map[*Register]*RegisterWord)
	for _, fv := range values {
		raw, _, err := fv.Field.Encode(fv.Value)
		if err != nil {
			continue
		}
		r := fv.Field.Register
		w, ok := words[r]
		if !ok {
			w = &RegisterWord{Register: r, Address: r.Address(), Value: r.Reset}
			words[r] = w
		}
		w.Value = (w.Value &^ fv.Field.Mask()) | (raw << fv.Field.Offset)
		w.Mask |= fv.Field.Mask()
	}

	out := make([]RegisterWord, 0, len(words))
	for _, w := range words {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Decode splits a register word into its field values, in field order.
func Decode(r *Register, word uint32) []FieldValue {
	out := make([]FieldValue, 0, len(r.Fields))
	for _, f := range r.Fields {
		out = append(out, FieldValue{Field: f, Value: f.Extract(word)})
	}
	return out
}
