package ascomserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Spelling selects how parameter names are matched.
type Spelling int

const (
	// SpellingStrict requires the exact parameter name. Used for PUT.
	SpellingStrict Spelling = iota
	// SpellingIgnoreCase matches names case-insensitively. Used for GET.
	SpellingIgnoreCase
)

// SpellingFor returns the matching rule Alpaca prescribes for an HTTP method.
func SpellingFor(method string) Spelling {
	if method == http.MethodPut {
		return SpellingStrict
	}
	return SpellingIgnoreCase
}

func (s Spelling) String() string {
	if s == SpellingStrict {
		return "strict"
	}
	return "ignore-case"
}

var (
	ErrParamNotFound = errors.New("parameter not found")
	ErrParamTooLong  = errors.New("parameter value too long")
	ErrParamInvalid  = errors.New("parameter value invalid")
)

// Params gives typed access to request parameters taken from both the
// query string and the form-encoded body.
type Params struct {
	values url.Values
}

// NewParams wraps already parsed values.
func NewParams(values url.Values) *Params {
	if values == nil {
		values = url.Values{}
	}
	return &Params{values: values}
}

// ParamsFromRequest collects query and form body parameters regardless of
// the HTTP method. A malformed body yields the parameters that could be read.
func ParamsFromRequest(r *http.Request) *Params {
	values := url.Values{}
	for k, v := range r.URL.Query() {
		values[k] = append(values[k], v...)
	}
	if r.Body != nil && strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err == nil {
			for k, v := range r.PostForm {
				values[k] = append(values[k], v...)
			}
		}
	}
	return NewParams(values)
}

// Get returns the raw value of name. The first occurrence wins.
func (p *Params) Get(name string, spelling Spelling) (string, error) {
	raw, ok := p.lookup(name, spelling)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrParamNotFound, name)
	}
	if len(raw) > MaxParamLength {
		return "", fmt.Errorf("%w: %s is %d bytes (max %d)", ErrParamTooLong, name, len(raw), MaxParamLength)
	}
	return raw, nil
}

// Has reports whether name is present at all.
func (p *Params) Has(name string, spelling Spelling) bool {
	_, ok := p.lookup(name, spelling)
	return ok
}

// lookup prefers the exact spelling. Other spellings are tried in sorted
// order so duplicates differing only in case resolve the same way every time.
func (p *Params) lookup(name string, spelling Spelling) (string, bool) {
	if v, ok := p.values[name]; ok && len(v) > 0 {
		return v[0], true
	}
	if spelling == SpellingStrict {
		return "", false
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := p.values[k]; strings.EqualFold(k, name) && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// Uint32 parses name as an unsigned 32-bit integer.
func (p *Params) Uint32(name string, spelling Spelling) (uint32, error) {
	raw, err := p.Get(name, spelling)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrParamInvalid, name, raw)
	}
	return uint32(v), nil
}

// Int parses name as a signed integer.
func (p *Params) Int(name string, spelling Spelling) (int, error) {
	raw, err := p.Get(name, spelling)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrParamInvalid, name, raw)
	}
	return v, nil
}

// Float parses name as a float64.
func (p *Params) Float(name string, spelling Spelling) (float64, error) {
	raw, err := p.Get(name, spelling)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrParamInvalid, name, raw)
	}
	return v, nil
}

// Bool parses name as a boolean. "True"/"False" in any case are accepted.
func (p *Params) Bool(name string, spelling Spelling) (bool, error) {
	raw, err := p.Get(name, spelling)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s=%q", ErrParamInvalid, name, raw)
}
