// File: endpoints/parse.go
// Author: momentics <momentics@gmail.com>

package endpoints

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// ErrInvalidEndpoint is matched by every description parsing error.
var ErrInvalidEndpoint = errors.New("invalid endpoint description")

func invalid(desc, format string, args ...any) error {
	return api.Wrap(api.ErrCodeInvalidArgument, ErrInvalidEndpoint,
		fmt.Sprintf("%q: %s", desc, fmt.Sprintf(format, args...)))
}

// description is a parsed "kind:arg:key=value" string.
type description struct {
	raw    string
	kind   string
	args   []string
	kwargs map[string]string
	used   map[string]bool
}

// split cuts s at unescaped occurrences of sep into at most n parts
// (n < 0 for no limit). Escapes are kept.
func split(s string, sep byte, n int) []string {
	var (
		parts []string
		start int
	)
	for i := 0; i < len(s) && n != len(parts)+1; i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parse(desc string) (*description, error) {
	fields := split(desc, ':', -1)
	d := &description{
		raw:    desc,
		kind:   strings.ToLower(unescape(fields[0])),
		kwargs: make(map[string]string),
		used:   make(map[string]bool),
	}
	if d.kind == "" {
		return nil, invalid(desc, "missing endpoint type")
	}
	for _, f := range fields[1:] {
		if kv := split(f, '=', 2); len(kv) == 2 {
			k := unescape(kv[0])
			if _, dup := d.kwargs[k]; dup {
				return nil, invalid(desc, "duplicate argument %q", k)
			}
			d.kwargs[k] = unescape(kv[1])
			continue
		}
		if len(d.kwargs) > 0 {
			return nil, invalid(desc, "positional argument %q after keyword arguments", unescape(f))
		}
		d.args = append(d.args, unescape(f))
	}
	return d, nil
}

// value returns the positional argument at pos or the keyword key.
func (d *description) value(pos int, key string) (string, bool) {
	if v, ok := d.kwargs[key]; ok {
		d.used[key] = true
		return v, true
	}
	if pos >= 0 && pos < len(d.args) {
		return d.args[pos], true
	}
	return "", false
}

func (d *description) port(pos int, key string) (uint16, bool, error) {
	v, ok := d.value(pos, key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, true, invalid(d.raw, "bad %s %q", key, v)
	}
	return uint16(n), true, nil
}

// seconds parses a possibly fractional number of seconds.
func (d *description) seconds(key string) (time.Duration, error) {
	v, ok := d.value(-1, key)
	if !ok {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, invalid(d.raw, "bad %s %q", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// finish rejects positional arguments beyond maxArgs and unknown keys.
func (d *description) finish(maxArgs int) error {
	if len(d.args) > maxArgs {
		return invalid(d.raw, "too many arguments")
	}
	for k := range d.kwargs {
		if !d.used[k] {
			return invalid(d.raw, "unknown argument %q", k)
		}
	}
	return nil
}
