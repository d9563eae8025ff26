package models

// Params holds named command parameters. Values arrive as JSON scalars or
// arrays, so numeric lookups normalize the usual decode types.
type Params map[string]interface{}

// Float returns a numeric parameter and whether it was present and numeric.
func (p Params) Float(key string) (float64, bool) {
	v, ok := p[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// FloatOr returns a numeric parameter or the given default.
func (p Params) FloatOr(key string, def float64) float64 {
	if v, ok := p.Float(key); ok {
		return v
	}
	return def
}

// String returns a string parameter and whether it was present.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns a string parameter or the given default.
func (p Params) StringOr(key, def string) string {
	if s, ok := p.String(key); ok {
		return s
	}
	return def
}

// IntOr returns an integer parameter or the given default.
func (p Params) IntOr(key string, def int) int {
	if v, ok := p.Float(key); ok {
		return int(v)
	}
	return def
}

// Has reports whether the parameter is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}
