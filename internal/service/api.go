package service

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"dispatch-server/internal/protocol"
)

const (
	DefaultSoftTimeout = 3 * time.Second
	DefaultHardTimeout = 20 * time.Second
)

// APIConfig is the per-API policy. A zero timeout means "use the service
// default".
type APIConfig struct {
	// SoftTimeout only escalates the call log to a warning.
	SoftTimeout time.Duration
	// HardTimeout becomes the deadline of the call context; handlers are
	// never interrupted.
	HardTimeout time.Duration
	// WithCtx passes the call *Context as the first argument.
	WithCtx bool
}

func (c APIConfig) withDefaults(soft, hard time.Duration) APIConfig {
	if c.SoftTimeout <= 0 {
		c.SoftTimeout = soft
	}
	if c.HardTimeout <= 0 {
		c.HardTimeout = hard
	}
	return c
}

type APIOption func(*APIConfig)

func SoftTimeout(d time.Duration) APIOption {
	return func(c *APIConfig) { c.SoftTimeout = d }
}

func HardTimeout(d time.Duration) APIOption {
	return func(c *APIConfig) { c.HardTimeout = d }
}

func WithCtx() APIOption {
	return func(c *APIConfig) { c.WithCtx = true }
}

var (
	contextType = reflect.TypeOf((*Context)(nil))
	kwargsType  = reflect.TypeOf(protocol.Kwargs(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// API is a registered handler and its configuration.
//
// Func may be any function. Positional arguments bind to its parameters in
// order; a final protocol.Kwargs parameter receives keyword arguments.
// It may return nothing, a value, an error, or a value and an error.
type API struct {
	Name string
	Func any
	Conf APIConfig

	fn          reflect.Value
	typ         reflect.Type
	takesKwargs bool
}

func NewAPI(name string, fn any, opts ...APIOption) (*API, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyAPIName
	}
	var conf APIConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&conf)
		}
	}

	rv := reflect.ValueOf(fn)
	if fn == nil || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("api %s: %w", name, ErrNotAFunc)
	}
	typ := rv.Type()
	if conf.WithCtx && (typ.NumIn() == 0 || typ.In(0) != contextType) {
		return nil, fmt.Errorf("api %s: %w", name, ErrBadCtxHandler)
	}
	switch typ.NumOut() {
	case 0, 1:
	case 2:
		if typ.Out(1) != errorType {
			return nil, fmt.Errorf("api %s: %w", name, ErrBadResults)
		}
	default:
		return nil, fmt.Errorf("api %s: %w", name, ErrBadResults)
	}

	first := 0
	if conf.WithCtx {
		first = 1
	}
	takesKwargs := !typ.IsVariadic() && typ.NumIn() > first && typ.In(typ.NumIn()-1) == kwargsType

	return &API{
		Name:        name,
		Func:        fn,
		Conf:        conf,
		fn:          rv,
		typ:         typ,
		takesKwargs: takesKwargs,
	}, nil
}

// Call invokes the handler. A panic in the handler is returned as a
// *PanicError.
func (a *API) Call(c *Context, args []any, kwargs protocol.Kwargs) (result any, err error) {
	in, err := a.bind(c, args, kwargs)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, &PanicError{Value: r}
		}
	}()

	out := a.fn.Call(in)
	return a.results(out)
}

func (a *API) bind(c *Context, args []any, kwargs protocol.Kwargs) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, a.typ.NumIn())
	first := 0
	if a.Conf.WithCtx {
		in = append(in, reflect.ValueOf(c))
		first = 1
	}
	last := a.typ.NumIn()
	if a.takesKwargs {
		last--
	}
	positional := last - first

	if a.typ.IsVariadic() {
		fixed := positional - 1
		if len(args) < fixed {
			return nil, &ArgumentError{API: a.Name, Reason: fmt.Sprintf("takes at least %d positional arguments but %d were given", fixed, len(args))}
		}
	} else if len(args) != positional {
		return nil, &ArgumentError{API: a.Name, Reason: fmt.Sprintf("takes %d positional arguments but %d were given", positional, len(args))}
	}
	if len(kwargs) > 0 && !a.takesKwargs {
		return nil, &ArgumentError{API: a.Name, Reason: "got unexpected keyword arguments: " + strings.Join(kwargs.Names(), ", ")}
	}

	for i, arg := range args {
		var t reflect.Type
		if a.typ.IsVariadic() && i >= positional-1 {
			t = a.typ.In(last - 1).Elem()
		} else {
			t = a.typ.In(first + i)
		}
		v, err := bindValue(arg, t)
		if err != nil {
			return nil, &ArgumentError{API: a.Name, Reason: fmt.Sprintf("argument %d: %v", i+1, err)}
		}
		in = append(in, v)
	}
	if a.takesKwargs {
		in = append(in, reflect.ValueOf(kwargs))
	}
	return in, nil
}

func (a *API) results(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if a.typ.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	default:
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// bindValue converts a decoded wire value to a parameter of type t.
func bindValue(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use None as %s", t)
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt(rv)
		if !ok {
			break
		}
		out := reflect.New(t).Elem()
		if out.OverflowInt(n) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetInt(n)
		return out, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toInt(rv)
		if !ok || n < 0 {
			break
		}
		out := reflect.New(t).Elem()
		if out.OverflowUint(uint64(n)) {
			return reflect.Value{}, fmt.Errorf("%d overflows %s", n, t)
		}
		out.SetUint(uint64(n))
		return out, nil
	case reflect.Float32, reflect.Float64:
		var f float64
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return reflect.Value{}, mismatch(v, t)
		}
		out := reflect.New(t).Elem()
		out.SetFloat(f)
		return out, nil
	case reflect.String, reflect.Bool:
		if rv.Kind() == t.Kind() {
			return rv.Convert(t), nil
		}
	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			e, err := bindValue(rv.Index(i).Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.Index(i).Set(e)
		}
		return out, nil
	case reflect.Map:
		if rv.Kind() != reflect.Map || t.Key().Kind() != reflect.String || rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := bindValue(iter.Value().Interface(), t.Elem())
			if err != nil {
				return reflect.Value{}, fmt.Errorf("[%q]: %w", iter.Key().String(), err)
			}
			out.SetMapIndex(iter.Key().Convert(t.Key()), e)
		}
		return out, nil
	case reflect.Pointer:
		e, err := bindValue(v, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(e)
		return p, nil
	case reflect.Struct:
		if rv.Kind() != reflect.Map {
			break
		}
		data, err := json.Marshal(v)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t)
		if err := json.Unmarshal(data, p.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("cannot use %v as %s: %w", v, t, err)
		}
		return p.Elem(), nil
	}
	return reflect.Value{}, mismatch(v, t)
}

func toInt(rv reflect.Value) (int64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

func mismatch(v any, t reflect.Type) error {
	return fmt.Errorf("cannot use %v (%T) as %s", v, v, t)
}
