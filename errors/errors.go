package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse      Phase = "parse"      // kernel source parsing
	PhaseTyping     Phase = "typing"     // type inference
	PhaseSpecialize Phase = "specialize" // lowering to wasm
	PhaseLoad       Phase = "load"       // wasm compilation and instantiation
	PhaseInvoke     Phase = "invoke"     // calling a specialization
	PhaseInterp     Phase = "interp"     // interpreted execution
	PhaseNative     Phase = "native"     // native callback registration
	PhaseEval       Phase = "eval"       // bulk expression evaluation
	PhaseConfig     Phase = "config"     // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindUnsupported       Kind = "unsupported_specialization"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindNativeContract    Kind = "native_contract_violation"
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindSyntax            Kind = "syntax"
	KindInstantiation     Kind = "instantiation"
	KindRuntime           Kind = "runtime"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrUnsupportedSpecialization = &Error{Kind: KindUnsupported}
	ErrSignatureMismatch         = &Error{Kind: KindSignatureMismatch}
	ErrNativeContract            = &Error{Kind: KindNativeContract}
	ErrTypeMismatch              = &Error{Kind: KindTypeMismatch}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
	ErrSyntax                    = &Error{Kind: KindSyntax}
)

// Error is the structured error type used throughout the library
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Kernel    string
	Signature string
	Pos       string
	Detail    string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Kernel != "" {
		b.WriteString(" in ")
		b.WriteString(e.Kernel)
		if e.Signature != "" {
			b.WriteString(e.Signature)
		}
	} else if e.Signature != "" {
		b.WriteString(" for ")
		b.WriteString(e.Signature)
	}

	if e.Pos != "" {
		b.WriteString(" at ")
		b.WriteString(e.Pos)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Kernel sets the kernel name
func (b *Builder) Kernel(name string) *Builder {
	b.err.Kernel = name
	return b
}

// Signature sets the rendered type signature
func (b *Builder) Signature(sig string) *Builder {
	b.err.Signature = sig
	return b
}

// Pos sets the source position
func (b *Builder) Pos(pos string) *Builder {
	b.err.Pos = pos
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Unsupported creates an unsupported specialization error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// SignatureMismatch reports a specialization invoked with arguments of other types.
func SignatureMismatch(kernel, want, got string) *Error {
	return &Error{
		Phase:     PhaseInvoke,
		Kind:      KindSignatureMismatch,
		Kernel:    kernel,
		Signature: want,
		Detail:    fmt.Sprintf("called with %s", got),
	}
}

// NativeContract reports a specialization that cannot serve a native calling convention.
func NativeContract(kernel, want, got string) *Error {
	return &Error{
		Phase:     PhaseNative,
		Kind:      KindNativeContract,
		Kernel:    kernel,
		Signature: got,
		Detail:    fmt.Sprintf("native routine requires %s", want),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, pos, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Pos:    pos,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Syntax creates a kernel source error
func Syntax(pos, detail string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindSyntax,
		Pos:    pos,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Messages shared by the interpreter and compiled traps.
const (
	MsgDivideByZero    = "integer divide by zero"
	MsgIntegerOverflow = "integer overflow"
	MsgIndexOutOfRange = "index out of range"
	MsgStackOverflow   = "stack overflow"
)

// RaiseError is an error raised by a kernel body, either explicitly with
// panic("...") or by a runtime check such as integer division by zero.
type RaiseError struct {
	Kernel  string
	Message string
}

func (e *RaiseError) Error() string {
	if e.Kernel == "" {
		return e.Message
	}
	return e.Kernel + ": " + e.Message
}

// Is reports whether target is a RaiseError with the same message.
// An empty target message matches any raise.
func (e *RaiseError) Is(target error) bool {
	t, ok := target.(*RaiseError)
	if !ok {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}
