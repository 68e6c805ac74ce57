package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frames are a structpb.Struct with these fields.
const (
	fieldVersion = "version"
	fieldType    = "type"
	fieldSeq     = "seq"
	fieldMethod  = "method"
	fieldArgs    = "args"
	fieldKwargs  = "kwargs"
	fieldResult  = "result"
	fieldFault   = "fault"
	fieldCode    = "code"
	fieldMessage = "message"
)

// maxSafeInt is the largest integer a float64 holds exactly.
const maxSafeInt = 1 << 53

func Marshal(m *Message) ([]byte, error) {
	s, err := toStruct(m)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

func Unmarshal(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, &Error{Kind: KindInvalidData, Err: err}
	}
	return fromStruct(&s)
}

func MarshalJSON(m *Message) ([]byte, error) {
	s, err := toStruct(m)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

func UnmarshalJSON(data []byte) (*Message, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal(data, &s); err != nil {
		return nil, &Error{Kind: KindInvalidData, Err: err}
	}
	return fromStruct(&s)
}

func toStruct(m *Message) (*structpb.Struct, error) {
	if m == nil {
		return nil, ErrNilMessage
	}
	version := m.Version
	if version == 0 {
		version = Version
	}
	fields := map[string]*structpb.Value{
		fieldVersion: structpb.NewNumberValue(float64(version)),
		fieldType:    structpb.NewNumberValue(float64(m.Type)),
		fieldSeq:     structpb.NewNumberValue(float64(m.SeqID)),
	}
	if m.Method != "" {
		fields[fieldMethod] = structpb.NewStringValue(m.Method)
	}

	switch m.Type {
	case TypeCall, TypeOneway:
		args, err := toList(m.Args)
		if err != nil {
			return nil, fmt.Errorf("encode args: %w", err)
		}
		fields[fieldArgs] = structpb.NewListValue(args)

		pairs := make([]*structpb.Value, 0, len(m.Kwargs))
		for _, kw := range m.Kwargs {
			v, err := toValue(kw.Value)
			if err != nil {
				return nil, fmt.Errorf("encode kwarg %s: %w", kw.Name, err)
			}
			pairs = append(pairs, structpb.NewListValue(&structpb.ListValue{
				Values: []*structpb.Value{structpb.NewStringValue(kw.Name), v},
			}))
		}
		fields[fieldKwargs] = structpb.NewListValue(&structpb.ListValue{Values: pairs})
	case TypeReply:
		v, err := toValue(m.Result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		fields[fieldResult] = v
	case TypeException:
		f := m.Fault
		if f == nil {
			f = NewFault(FaultUnknown, "")
		}
		fields[fieldFault] = structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			fieldCode:    structpb.NewNumberValue(float64(f.Code)),
			fieldMessage: structpb.NewStringValue(f.Message),
		}})
	default:
		return nil, fmt.Errorf("encode: invalid message type %d", m.Type)
	}
	return &structpb.Struct{Fields: fields}, nil
}

func fromStruct(s *structpb.Struct) (*Message, error) {
	fields := s.GetFields()

	version, ok := numberField(fields, fieldVersion)
	if !ok || int(version) != Version {
		return nil, NewError(KindBadVersion, "unsupported version %v", fields[fieldVersion].AsInterface())
	}
	typ, ok := numberField(fields, fieldType)
	if !ok || !MessageType(typ).valid() {
		return nil, NewError(KindInvalidData, "invalid message type %v", fields[fieldType].AsInterface())
	}
	seq, _ := numberField(fields, fieldSeq)

	m := &Message{
		Version: Version,
		Type:    MessageType(typ),
		SeqID:   int64(seq),
		Method:  fields[fieldMethod].GetStringValue(),
	}

	switch m.Type {
	case TypeCall, TypeOneway:
		if m.Method == "" {
			return nil, &Error{Kind: KindInvalidData, Err: ErrMissingMethod}
		}
		if v, ok := fields[fieldArgs]; ok {
			list := v.GetListValue()
			if list == nil {
				return nil, NewError(KindInvalidData, "args must be a list")
			}
			m.Args = fromList(list)
		}
		if v, ok := fields[fieldKwargs]; ok {
			list := v.GetListValue()
			if list == nil {
				return nil, NewError(KindInvalidData, "kwargs must be a list of pairs")
			}
			for _, pair := range list.GetValues() {
				kv := pair.GetListValue().GetValues()
				if len(kv) != 2 {
					return nil, NewError(KindInvalidData, "kwarg must be a [name, value] pair")
				}
				name, isString := kv[0].GetKind().(*structpb.Value_StringValue)
				if !isString {
					return nil, NewError(KindInvalidData, "kwarg name must be a string")
				}
				m.Kwargs = append(m.Kwargs, Kwarg{Name: name.StringValue, Value: fromValue(kv[1])})
			}
		}
	case TypeReply:
		m.Result = fromValue(fields[fieldResult])
	case TypeException:
		ff := fields[fieldFault].GetStructValue().GetFields()
		code, _ := numberField(ff, fieldCode)
		m.Fault = NewFault(FaultCode(code), ff[fieldMessage].GetStringValue())
	}
	return m, nil
}

func numberField(fields map[string]*structpb.Value, name string) (float64, bool) {
	v, ok := fields[name]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func toList(values []any) (*structpb.ListValue, error) {
	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(values))}
	for _, v := range values {
		pv, err := toValue(v)
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, pv)
	}
	return list, nil
}

func toValue(v any) (*structpb.Value, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	return structpb.NewValue(n)
}

func fromList(list *structpb.ListValue) []any {
	out := make([]any, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out = append(out, fromValue(v))
	}
	return out
}

// fromValue converts a wire value back to Go. Integral numbers come back
// as int64 so they bind to integer parameters and log like integers.
func fromValue(v *structpb.Value) any {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f == math.Trunc(f) && math.Abs(f) < maxSafeInt {
			return int64(f)
		}
		return f
	case *structpb.Value_StringValue:
		return k.StringValue
	case *structpb.Value_BoolValue:
		return k.BoolValue
	case *structpb.Value_ListValue:
		return fromList(k.ListValue)
	case *structpb.Value_StructValue:
		m := make(map[string]any, len(k.StructValue.GetFields()))
		for name, fv := range k.StructValue.GetFields() {
			m[name] = fromValue(fv)
		}
		return m
	default:
		return nil
	}
}

// Normalize converts v into the value set structpb can carry: nil, bool,
// numbers, string, []byte, []any and map[string]any. Typed slices and maps
// are converted element-wise; structs go through encoding/json.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return x, nil
	case Kwargs:
		return Normalize(x.Map())
	case Meta:
		m := make(map[string]any, len(x))
		for k, s := range x {
			m[k] = s
		}
		return m, nil
	case error:
		return x.Error(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Elem().Kind() != reflect.Struct {
			return Normalize(rv.Elem().Interface())
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			e, err := Normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedValue, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := Normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = e
		}
		return out, nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedValue, rv.Type())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
	}
	return out, nil
}
