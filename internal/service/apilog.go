package service

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"dispatch-server/internal/protocol"
)

// Outcome is how a finished call is reported.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeSoftTimeout Outcome = "soft_timeout"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeError       Outcome = "error"
)

// Elapsed is end_at minus start_at.
func Elapsed(c *Context) time.Duration {
	return c.EndAt().Sub(c.StartAt())
}

func Classify(c *Context) Outcome {
	if exc := c.Exc(); exc != nil {
		if IsTimeout(exc) {
			return OutcomeTimeout
		}
		return OutcomeError
	}
	if soft := c.Conf().SoftTimeout; soft > 0 && Elapsed(c) >= soft {
		return OutcomeSoftTimeout
	}
	return OutcomeOK
}

// LogAPICall writes the one-line call summary through the call logger:
//
//	<prefix><api>(<args>,<k>=<v>) <elapsed>ms
func LogAPICall(c *Context) error {
	line := fmt.Sprintf("%s %.1fms", FormatCall(c.APIName(), c.Args(), c.Kwargs()),
		float64(Elapsed(c))/float64(time.Millisecond))

	logger := c.Logger()
	switch Classify(c) {
	case OutcomeTimeout:
		logger.Exception(c.Exc(), "Timeout! %s", line)
	case OutcomeError:
		logger.Exception(c.Exc(), "%s => %s", c.Exc().Error(), line)
	case OutcomeSoftTimeout:
		logger.Warn("Soft timeout! %s", line)
	default:
		logger.Info("%s", line)
	}
	return nil
}

// FormatCall renders name(args,k=v) with every value in repr form.
func FormatCall(name string, args []any, kwargs protocol.Kwargs) string {
	parts := make([]string, 0, len(args)+len(kwargs))
	for _, arg := range args {
		parts = append(parts, repr(arg))
	}
	for _, kw := range kwargs {
		parts = append(parts, kw.Name+"="+repr(kw.Value))
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}

func repr(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case string:
		return quote(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return reprFloat(x)
	case float32:
		return reprFloat(float64(x))
	case error:
		return quote(x.Error())
	case fmt.Stringer:
		return quote(x.String())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return reprFloat(rv.Float())
	case reflect.String:
		return quote(rv.String())
	case reflect.Bool:
		return repr(rv.Bool())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "None"
		}
		return repr(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		items := make([]string, rv.Len())
		for i := range items {
			items[i] = repr(rv.Index(i).Interface())
		}
		return "[" + strings.Join(items, ", ") + "]"
	case reflect.Map:
		keys := rv.MapKeys()
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = repr(k.Interface()) + ": " + repr(rv.MapIndex(k).Interface())
		}
		sort.Strings(items)
		return "{" + strings.Join(items, ", ") + "}"
	}
	return fmt.Sprintf("%v", v)
}

func reprFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

// quote uses single quotes unless the string holds a ' and no ".
func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
