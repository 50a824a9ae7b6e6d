package types

import (
	"fmt"
	"strings"

	kerrors "github.com/wippyai/wasm-kernels/errors"
)

// Signature is the ordered list of argument types observed or declared for a call.
type Signature []Type

// Key returns the canonical cache key. Value-equal signatures have equal keys.
func (s Signature) Key() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key())
	}
	b.WriteByte(')')
	return b.String()
}

func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Equal reports whether s and o list the same types.
func (s Signature) Equal(o Signature) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// FuncSig is a declared signature with an optional result type, as in
// "float64(float64, float64)". A Void result means "infer".
type FuncSig struct {
	Params Signature
	Result Type
}

func (f FuncSig) String() string {
	if f.Result.IsVoid() {
		return f.Params.String()
	}
	return f.Result.String() + f.Params.String()
}

// TypeOf returns the kernel type of a runtime value.
func TypeOf(v any) (Type, bool) {
	switch x := v.(type) {
	case bool:
		return Scalar(Bool), true
	case int8:
		return Scalar(Int8), true
	case int16:
		return Scalar(Int16), true
	case int32:
		return Scalar(Int32), true
	case int64, int:
		return Scalar(Int64), true
	case uint8:
		return Scalar(Uint8), true
	case uint16:
		return Scalar(Uint16), true
	case uint32:
		return Scalar(Uint32), true
	case uint64, uint:
		return Scalar(Uint64), true
	case float32:
		return Scalar(Float32), true
	case float64:
		return Scalar(Float64), true
	case Typed:
		t := x.KernelType()
		return t, !t.IsVoid()
	}
	return Void, false
}

// SignatureOf derives the Type Signature of a call from its arguments.
func SignatureOf(args ...any) (Signature, error) {
	sig := make(Signature, len(args))
	for i, a := range args {
		t, ok := TypeOf(a)
		if !ok {
			return nil, kerrors.Unsupported(kerrors.PhaseInvoke,
				fmt.Sprintf("argument %d has unsupported type %T", i, a))
		}
		sig[i] = t
	}
	return sig, nil
}

// ParseType parses "float64", "int32[:,:]", "[]float64" and the numba aliases.
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Void, kerrors.InvalidInput(kerrors.PhaseParse, "empty type")
	}
	if s == "void" || s == "none" {
		return Void, nil
	}

	rank := 0
	for strings.HasPrefix(s, "[]") {
		rank++
		s = s[2:]
	}
	if open := strings.IndexByte(s, '['); open >= 0 {
		if rank > 0 || !strings.HasSuffix(s, "]") {
			return Void, kerrors.InvalidInput(kerrors.PhaseParse, fmt.Sprintf("malformed array type %q", s))
		}
		dims := s[open+1 : len(s)-1]
		for _, d := range strings.Split(dims, ",") {
			if strings.TrimSpace(d) != ":" && strings.TrimSpace(d) != "::1" {
				return Void, kerrors.InvalidInput(kerrors.PhaseParse, fmt.Sprintf("unsupported array dimension %q", d))
			}
			rank++
		}
		s = s[:open]
	}

	k, ok := KindFromName(strings.TrimSpace(s))
	if !ok {
		return Void, kerrors.InvalidInput(kerrors.PhaseParse, fmt.Sprintf("unknown type %q", s))
	}
	return ArrayOf(k, rank), nil
}

// ParseFuncSig parses "result(param, ...)" or "(param, ...)".
func ParseFuncSig(s string) (FuncSig, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return FuncSig{}, kerrors.InvalidInput(kerrors.PhaseParse, fmt.Sprintf("malformed signature %q", s))
	}

	var fs FuncSig
	if res := strings.TrimSpace(s[:open]); res != "" {
		t, err := ParseType(res)
		if err != nil {
			return FuncSig{}, err
		}
		fs.Result = t
	}

	body := strings.TrimSpace(s[open+1 : len(s)-1])
	if body == "" {
		fs.Params = Signature{}
		return fs, nil
	}
	for _, p := range splitTopLevel(body) {
		t, err := ParseType(p)
		if err != nil {
			return FuncSig{}, err
		}
		if t.IsVoid() {
			return FuncSig{}, kerrors.InvalidInput(kerrors.PhaseParse, "void parameter")
		}
		fs.Params = append(fs.Params, t)
	}
	return fs, nil
}

// splitTopLevel splits on commas outside brackets.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
