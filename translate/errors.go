// Package translate converts decoded guest instructions between
// architectures. A Pipeline owns four independent caches (register mapping,
// encoding, pattern, translation result) and is safe for use from many
// worker goroutines at once.
package translate

import (
	"fmt"

	"xlate/isa"
)

// ErrorKind is the closed set of translation failure reasons.
type ErrorKind uint8

const (
	// KindUnsupportedArchPair: the (src, dst) combination has no
	// generation rules at all.
	KindUnsupportedArchPair ErrorKind = iota
	// KindUnsupportedInstruction: the opcode has no known translation for
	// the requested pair.
	KindUnsupportedInstruction
	// KindRegisterMappingNotFound: neither a curated nor a viable default
	// register mapping exists.
	KindRegisterMappingNotFound
	// KindEncodingError: the input instruction is malformed. A correct
	// decoder never produces one; this propagates the upstream defect.
	KindEncodingError
	// KindPoisonedCache: a worker panicked mid-translation and the
	// pipeline's shared state can no longer be trusted. Fatal for the
	// pipeline instance.
	KindPoisonedCache
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnsupportedArchPair:
		return "unsupported arch pair"
	case KindUnsupportedInstruction:
		return "unsupported instruction"
	case KindRegisterMappingNotFound:
		return "register mapping not found"
	case KindEncodingError:
		return "encoding error"
	case KindPoisonedCache:
		return "poisoned cache"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is the concrete error returned by every pipeline operation.
// Callers dispatch on Kind (or errors.Is against the exported sentinels);
// the remaining fields carry context for logs.
type Error struct {
	Kind ErrorKind
	Src  isa.Arch
	Dst  isa.Arch
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s -> %s", e.Kind, e.Src, e.Dst)
	}
	return fmt.Sprintf("%s: %s -> %s: %s", e.Kind, e.Src, e.Dst, e.Msg)
}

// Is matches against the kind sentinels so errors.Is(err,
// ErrUnsupportedInstruction) works without unwrapping by hand.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Src == isa.Unknown || t.Src == e.Src) &&
		(t.Dst == isa.Unknown || t.Dst == e.Dst)
}

// Kind sentinels for errors.Is.
var (
	ErrUnsupportedArchPair     = &Error{Kind: KindUnsupportedArchPair}
	ErrUnsupportedInstruction  = &Error{Kind: KindUnsupportedInstruction}
	ErrRegisterMappingNotFound = &Error{Kind: KindRegisterMappingNotFound}
	ErrEncoding                = &Error{Kind: KindEncodingError}
	ErrPoisonedCache           = &Error{Kind: KindPoisonedCache}
)

func errUnsupportedPair(src, dst isa.Arch) *Error {
	return &Error{Kind: KindUnsupportedArchPair, Src: src, Dst: dst}
}

func errUnsupportedInstruction(src, dst isa.Arch, format string, args ...any) *Error {
	return &Error{Kind: KindUnsupportedInstruction, Src: src, Dst: dst, Msg: fmt.Sprintf(format, args...)}
}

func errRegisterNotFound(src, dst isa.Arch, reg isa.RegId) *Error {
	return &Error{
		Kind: KindRegisterMappingNotFound,
		Src:  src,
		Dst:  dst,
		Msg:  fmt.Sprintf("register %s has no counterpart", reg),
	}
}

func errEncoding(a isa.Arch, format string, args ...any) *Error {
	return &Error{Kind: KindEncodingError, Src: a, Dst: a, Msg: fmt.Sprintf(format, args...)}
}

func errPoisoned(src, dst isa.Arch, cause any) *Error {
	return &Error{
		Kind: KindPoisonedCache,
		Src:  src,
		Dst:  dst,
		Msg:  fmt.Sprintf("worker panic: %v", cause),
	}
}
