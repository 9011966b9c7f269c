package model

import (
	"errors"
	"reflect"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/argument"
	"github.com/luciancaetano/wsnext/internal/path"
)

// Discover validates every declaration and builds the endpoint models and
// the global error registry. It is all-or-nothing: on error no models are
// returned.
func Discover(endpoints []*wsnext.Endpoint, globals []*wsnext.ErrorHandlers, resolvers argument.Resolvers) ([]*Endpoint, *ErrorRegistry, error) {
	if resolvers == nil {
		resolvers = argument.Defaults()
	}

	registry := &ErrorRegistry{}
	for _, g := range globals {
		if g == nil {
			continue
		}
		sc := scope{ownerID: ownerID(g.OwnerID, g.Owner), ownerType: typeOf(g.Owner), global: true}
		for _, decl := range g.Callbacks {
			if decl.Event != wsnext.OnError {
				return nil, nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback,
					"global error handlers may only declare OnError callbacks, found %s", decl.Event)
			}
			cb, err := newCallback(decl, sc, resolvers)
			if err != nil {
				return nil, nil, err
			}
			if err := registry.add(cb); err != nil {
				return nil, nil, err
			}
		}
	}

	models := make([]*Endpoint, 0, len(endpoints))
	byPath := make(map[string]*Endpoint, len(endpoints))
	byID := make(map[string]*Endpoint, len(endpoints))
	for _, decl := range endpoints {
		m, err := newEndpoint(decl, resolvers)
		if err != nil {
			return nil, nil, err
		}
		if prev, ok := byPath[m.Path]; ok {
			return nil, nil, wsnext.NewDiscoveryError(wsnext.DuplicatePath,
				"multiple endpoints define the path %s: %s and %s", m.Path, prev.ID, m.ID)
		}
		if prev, ok := byID[m.ID]; ok {
			return nil, nil, wsnext.NewDiscoveryError(wsnext.DuplicateID,
				"multiple endpoints define the id %s: %s and %s", m.ID, prev.Path, m.Path)
		}
		byPath[m.Path] = m
		byID[m.ID] = m
		models = append(models, m)
	}
	return models, registry, nil
}

func newEndpoint(decl *wsnext.Endpoint, resolvers argument.Resolvers) (*Endpoint, error) {
	if decl == nil {
		return nil, wsnext.NewDiscoveryError(wsnext.InvalidEndpoint, "nil endpoint declaration")
	}
	p, err := FullPath(decl)
	if err != nil {
		return nil, err
	}

	m := &Endpoint{
		Path:          p,
		ExecutionMode: decl.ExecutionMode,
		OwnerID:       ownerID(decl.OwnerID, decl.Owner),
		OwnerType:     typeOf(decl.Owner),
	}
	m.ID = decl.ID
	if m.ID == "" {
		m.ID = m.OwnerID
	}
	if m.ID == "" {
		m.ID = p
	}

	sc := scope{ownerID: m.OwnerID, ownerType: m.OwnerType, endpointPath: p}
	for _, cd := range decl.Callbacks {
		cb, err := newCallback(cd, sc, resolvers)
		if err != nil {
			return nil, err
		}
		if cb.Event == wsnext.OnError {
			if prev := m.LocalErrorHandler(cb.ErrorType); prev != nil {
				return nil, wsnext.NewDiscoveryError(wsnext.DuplicateErrorHandler,
					"multiple error handlers for %v on endpoint %s: %s and %s", cb.ErrorType, m.ID, prev.Method, cb.Method)
			}
			m.OnErrors = append(m.OnErrors, cb)
			continue
		}
		if !m.set(cb) {
			return nil, wsnext.NewDiscoveryError(wsnext.InvalidCallback,
				"endpoint %s declares more than one %s callback: %s and %s", m.ID, cb.Event, m.Callback(cb.Event).Method, cb.Method)
		}
	}

	if m.OnOpen == nil && m.OnTextMessage == nil && m.OnBinaryMessage == nil && m.OnPongMessage == nil {
		return nil, wsnext.NewDiscoveryError(wsnext.MissingCallback,
			"endpoint %s must declare at least one of OnOpen, OnTextMessage, OnBinaryMessage or OnPongMessage", m.ID)
	}
	return m, nil
}

// FullPath returns the normalized path of decl prefixed with the paths of
// its parents.
func FullPath(decl *wsnext.Endpoint) (string, error) {
	var chain []*wsnext.Endpoint
	seen := make(map[*wsnext.Endpoint]bool)
	for e := decl; e != nil; e = e.Parent {
		if seen[e] {
			return "", wsnext.NewDiscoveryError(wsnext.InvalidEndpoint, "endpoint parent cycle at path %s", e.Path)
		}
		seen[e] = true
		chain = append(chain, e)
	}

	full := ""
	for i := len(chain) - 1; i >= 0; i-- {
		p, err := path.Normalize(chain[i].Path)
		if err != nil {
			var ate *path.AmbiguousTokenError
			if errors.As(err, &ate) {
				return "", wsnext.NewDiscoveryError(wsnext.AmbiguousPathToken, "%v", err)
			}
			return "", err
		}
		switch {
		case full == "":
			full = p
		case p != "/":
			full = path.Merge(full, p)
		}
	}
	return full, nil
}

func ownerID(id string, owner any) string {
	if id != "" {
		return id
	}
	return wsnext.OwnerIDOf(owner)
}

func typeOf(owner any) reflect.Type {
	if owner == nil {
		return nil
	}
	return reflect.TypeOf(owner)
}
