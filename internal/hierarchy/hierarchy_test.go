package hierarchy

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type AppError struct{ Code int }

func (e *AppError) Error() string { return fmt.Sprintf("app error %d", e.Code) }

type appError struct{}

func (e *appError) Error() string { return "hidden" }

type NotFound struct {
	*AppError
	What string
}

type Gone struct {
	NotFound
}

func (e *Gone) Error() string { return "gone" }

type valueError struct{}

func (valueError) Error() string { return "value" }

type unexportedParent struct {
	appError
}

func (e *unexportedParent) Error() string { return "unexported" }

type SelfEmbed struct {
	*SelfEmbed
}

func (e *SelfEmbed) Error() string { return "self" }

type temporary interface {
	error
	Temporary() bool
}

func TestChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		typ  reflect.Type
		want []reflect.Type
	}{
		{
			name: "root",
			typ:  ErrorType(),
			want: []reflect.Type{ErrorType()},
		},
		{
			name: "plain error",
			typ:  reflect.TypeFor[valueError](),
			want: []reflect.Type{reflect.TypeFor[valueError](), ErrorType()},
		},
		{
			name: "embedded pointer parent",
			typ:  reflect.TypeFor[*NotFound](),
			want: []reflect.Type{reflect.TypeFor[*NotFound](), reflect.TypeFor[*AppError](), ErrorType()},
		},
		{
			name: "embedded value parent of pointer type",
			typ:  reflect.TypeFor[*Gone](),
			want: []reflect.Type{
				reflect.TypeFor[*Gone](),
				reflect.TypeFor[*NotFound](),
				reflect.TypeFor[*AppError](),
				ErrorType(),
			},
		},
		{
			name: "unexported embedding is not a parent",
			typ:  reflect.TypeFor[*unexportedParent](),
			want: []reflect.Type{reflect.TypeFor[*unexportedParent](), ErrorType()},
		},
		{
			name: "interface",
			typ:  reflect.TypeFor[temporary](),
			want: []reflect.Type{reflect.TypeFor[temporary](), ErrorType()},
		},
		{
			name: "self embedding terminates",
			typ:  reflect.TypeFor[*SelfEmbed](),
			want: []reflect.Type{reflect.TypeFor[*SelfEmbed](), ErrorType()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Chain(tt.typ))
			assert.Equal(t, len(tt.want), Rank(tt.typ))
		})
	}
}

func TestRankOrdersSpecificFirst(t *testing.T) {
	t.Parallel()

	assert.Greater(t, Rank(reflect.TypeFor[*Gone]()), Rank(reflect.TypeFor[*NotFound]()))
	assert.Greater(t, Rank(reflect.TypeFor[*NotFound]()), Rank(reflect.TypeFor[*AppError]()))
	assert.Greater(t, Rank(reflect.TypeFor[*AppError]()), Rank(ErrorType()))
}

func TestMatch(t *testing.T) {
	t.Parallel()

	base := &AppError{Code: 7}
	nf := &NotFound{AppError: base, What: "room"}

	t.Run("exact type", func(t *testing.T) {
		t.Parallel()
		v, ok := Match(nf, reflect.TypeFor[*NotFound]())
		require.True(t, ok)
		assert.Same(t, nf, v.Interface())
	})

	t.Run("ancestor extracts embedded value", func(t *testing.T) {
		t.Parallel()
		v, ok := Match(nf, reflect.TypeFor[*AppError]())
		require.True(t, ok)
		assert.Same(t, base, v.Interface())
	})

	t.Run("descendant does not match ancestor instance", func(t *testing.T) {
		t.Parallel()
		_, ok := Match(base, reflect.TypeFor[*NotFound]())
		assert.False(t, ok)
	})

	t.Run("root matches anything", func(t *testing.T) {
		t.Parallel()
		v, ok := Match(valueError{}, ErrorType())
		require.True(t, ok)
		assert.Equal(t, valueError{}, v.Interface())
	})

	t.Run("wrapped", func(t *testing.T) {
		t.Parallel()
		wrapped := fmt.Errorf("handling: %w", nf)
		v, ok := Match(wrapped, reflect.TypeFor[*NotFound]())
		require.True(t, ok)
		assert.Same(t, nf, v.Interface())
	})

	t.Run("joined", func(t *testing.T) {
		t.Parallel()
		joined := errors.Join(errors.New("other"), nf)
		assert.True(t, Is(joined, reflect.TypeFor[*AppError]()))
	})

	t.Run("value parent through pointer", func(t *testing.T) {
		t.Parallel()
		g := &Gone{NotFound: NotFound{AppError: base}}
		v, ok := Match(g, reflect.TypeFor[*NotFound]())
		require.True(t, ok)
		assert.Same(t, &g.NotFound, v.Interface())
	})

	t.Run("nil embedded parent", func(t *testing.T) {
		t.Parallel()
		orphan := &NotFound{What: "room"}
		assert.Equal(t, 3, Rank(reflect.TypeOf(orphan)))

		_, ok := Match(orphan, reflect.TypeFor[*AppError]())
		assert.False(t, ok)

		v, ok := Match(orphan, reflect.TypeFor[*NotFound]())
		require.True(t, ok)
		assert.Same(t, orphan, v.Interface())

		v, ok = Match(orphan, ErrorType())
		require.True(t, ok)
		assert.Same(t, orphan, v.Interface())
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		_, ok := Match(nil, ErrorType())
		assert.False(t, ok)
	})
}
