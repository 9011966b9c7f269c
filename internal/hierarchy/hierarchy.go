// Package hierarchy ranks error types along their embedding chain.
//
// An error type's parent is the type of its first field when that field is
// embedded, exported and implements error. Behind a pointer, an embedded
// struct S is seen as *S.
// Every chain ends at the error interface:
//
//	type AppError struct{ Code int }
//	type NotFound struct{ *AppError }
//
//	Chain(*NotFound) // [*NotFound, *AppError, error]
//
// Ranking is static while matching walks the value. A NotFound whose
// AppError is nil still ranks below *AppError handlers, but it does not
// match them; it matches *NotFound and error handlers only.
package hierarchy

import (
	"reflect"
)

var errorType = reflect.TypeFor[error]()

// ErrorType returns the reflect type of the error interface.
func ErrorType() reflect.Type {
	return errorType
}

// IsError reports whether t can carry an error value.
func IsError(t reflect.Type) bool {
	return t != nil && (t == errorType || t.Implements(errorType))
}

// Parent returns the parent of t in the error hierarchy, or nil for the root
// and for interface types other than error (whose parent is error).
func Parent(t reflect.Type) reflect.Type {
	if t == errorType {
		return nil
	}
	if t.Kind() == reflect.Interface {
		return errorType
	}
	f, ok := firstEmbedded(t)
	if !ok {
		return errorType
	}
	if t.Kind() == reflect.Pointer && f.Type.Kind() == reflect.Struct && reflect.PointerTo(f.Type).Implements(errorType) {
		return reflect.PointerTo(f.Type)
	}
	if f.Type.Implements(errorType) {
		return f.Type
	}
	return errorType
}

func firstEmbedded(t reflect.Type) (reflect.StructField, bool) {
	s := t
	if s.Kind() == reflect.Pointer {
		s = s.Elem()
	}
	if s.Kind() != reflect.Struct || s.NumField() == 0 {
		return reflect.StructField{}, false
	}
	f := s.Field(0)
	if !f.Anonymous || !f.IsExported() {
		return reflect.StructField{}, false
	}
	return f, true
}

// Chain returns t followed by its ancestors, most specific first.
func Chain(t reflect.Type) []reflect.Type {
	chain := []reflect.Type{t}
	seen := map[reflect.Type]bool{t: true}
	for p := Parent(t); p != nil; p = Parent(p) {
		if seen[p] {
			// Pointer self-embedding; close the chain at the root.
			if !seen[errorType] {
				chain = append(chain, errorType)
			}
			break
		}
		seen[p] = true
		chain = append(chain, p)
	}
	return chain
}

// Rank is the length of the chain from t to the root; higher is more
// specific.
func Rank(t reflect.Type) int {
	return len(Chain(t))
}

// Match finds the first error in err's tree (as errors.As walks it) that is
// of type target or descends from it, and returns it converted to target.
// The walk stops at a nil embedded parent, so the returned value is never a
// nil pointer.
func Match(err error, target reflect.Type) (reflect.Value, bool) {
	if err == nil {
		return reflect.Value{}, false
	}
	if v, ok := matchOne(err, target); ok {
		return v, true
	}
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return Match(x.Unwrap(), target)
	case interface{ Unwrap() []error }:
		for _, e := range x.Unwrap() {
			if v, ok := Match(e, target); ok {
				return v, true
			}
		}
	}
	return reflect.Value{}, false
}

func matchOne(err error, target reflect.Type) (reflect.Value, bool) {
	v := reflect.ValueOf(err)
	if target.Kind() == reflect.Interface {
		if v.Type().Implements(target) {
			out := reflect.New(target).Elem()
			out.Set(v)
			return out, true
		}
		return reflect.Value{}, false
	}
	for cur := v; cur.IsValid(); cur = parentValue(cur) {
		if cur.Type() == target {
			return cur, true
		}
	}
	return reflect.Value{}, false
}

// parentValue extracts the embedded parent from v, following the same rules
// as Parent. It returns the zero Value when v has no concrete parent.
func parentValue(v reflect.Value) reflect.Value {
	t := v.Type()
	f, ok := firstEmbedded(t)
	if !ok {
		return reflect.Value{}
	}
	s := v
	if t.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		s = v.Elem()
	}
	fv := s.Field(0)
	switch {
	case t.Kind() == reflect.Pointer && f.Type.Kind() == reflect.Struct && reflect.PointerTo(f.Type).Implements(errorType):
		return fv.Addr()
	case f.Type.Kind() == reflect.Interface:
		return reflect.Value{}
	case f.Type.Implements(errorType):
		if f.Type.Kind() == reflect.Pointer && fv.IsNil() {
			return reflect.Value{}
		}
		return fv
	}
	return reflect.Value{}
}

// Is reports whether err matches target; it is a convenience over Match.
func Is(err error, target reflect.Type) bool {
	_, ok := Match(err, target)
	return ok
}
