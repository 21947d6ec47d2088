package tracing

import (
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// fieldsFromAttributes flattens an OTel attribute set the way the source
// visitor flattens tracing's Field set: bool/int64/float64/string
// materialize directly, slices of those as JSON arrays, and anything else
// through its string form (Value.Emit).
func fieldsFromAttributes(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = attrValue(kv.Value)
	}
	return out
}

func attrValue(v attribute.Value) any {
	switch v.Type() {
	case attribute.BOOL:
		return v.AsBool()
	case attribute.INT64:
		return v.AsInt64()
	case attribute.FLOAT64:
		return v.AsFloat64()
	case attribute.STRING:
		return v.AsString()
	case attribute.BOOLSLICE, attribute.INT64SLICE, attribute.FLOAT64SLICE, attribute.STRINGSLICE:
		return v.AsInterface()
	default:
		return v.Emit()
	}
}

// tracingMeta is merged into a record's Fields under the "tracing" key.
type tracingMeta struct {
	Name       string `json:"name"`
	Target     string `json:"target"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	ModulePath string `json:"module_path,omitempty"`
}

// encodeFields merges fields and meta into the JSON blob stored in
// wire.Record.Fields.
func encodeFields(fields map[string]any, meta tracingMeta) string {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["tracing"] = meta
	b, err := json.Marshal(fields)
	if err != nil {
		// Fields is best-effort metadata; never block emission on a
		// marshal failure, which can only happen for unsupported types
		// smuggled in through AsInterface().
		return fmt.Sprintf(`{"tracing_encode_error":%q}`, err.Error())
	}
	return string(b)
}
