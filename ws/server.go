package ws

import (
	"context"
	"net/http"

	"github.com/luciancaetano/wsnext"
	"github.com/luciancaetano/wsnext/internal/codec"
	"github.com/luciancaetano/wsnext/internal/compiler"
	"github.com/luciancaetano/wsnext/internal/dispatch"
	"github.com/luciancaetano/wsnext/internal/model"
	"github.com/luciancaetano/wsnext/internal/websocket"
)

type RateLimitConfig = websocket.RateLimitConfig
type CheckOriginFn = websocket.CheckOriginFn
type OnConnectFn = websocket.OnConnectFn
type OnDisconnectFn = websocket.OnClientDisconnectFn
type ServerConfig = *websocket.ServerConfig

// New validates and compiles the configured endpoints and returns a server
// serving them.
//
// Invalid declarations return a *wsnext.DiscoveryError and no server: an
// endpoint set is registered completely or not at all.
//
// Example:
//
//	cfg := ws.NewConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins(), nil, nil).
//	    WithEndpoints(&wsnext.Endpoint{
//	        Path:  "/echo",
//	        Owner: &Echo{},
//	        Callbacks: []wsnext.Callback{
//	            {Event: wsnext.OnTextMessage, Method: (*Echo).Echo},
//	        },
//	    })
//	server, err := ws.New(cfg)
func New(cfg ServerConfig) (wsnext.Server, error) {
	server, err := newServer(cfg)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func newServer(cfg ServerConfig) (*websocket.Server, error) {
	cfg.ApplyDefaults()

	endpoints, globals, err := model.Discover(cfg.Endpoints, cfg.ErrorHandlers, nil)
	if err != nil {
		return nil, err
	}
	codecs := codec.NewRegistry(cfg.TextCodecs, cfg.BinaryCodecs)
	compiled := compiler.CompileAll(endpoints, globals, codecs, cfg.Logger)

	container := cfg.Container
	if container == nil {
		container = defaultContainer(cfg.Endpoints, cfg.ErrorHandlers)
	}

	server := websocket.New(cfg)
	for _, c := range compiled {
		if err := server.RegisterEndpoint(c.Path(), c.ID(), sessionFactory(c, container)); err != nil {
			server.Stop(context.Background())
			return nil, err
		}
		cfg.Logger.Debug("websocket endpoint compiled",
			"endpoint", c.ID(), "mode", c.ExecutionMode(), "error_chain", c.ErrorChain())
	}
	return server, nil
}

func sessionFactory(c *compiler.Compiled, container wsnext.Container) websocket.SessionFactory {
	return func(opts dispatch.Options) *dispatch.Session {
		opts.Compiled = c
		opts.Container = container
		return dispatch.NewSession(opts)
	}
}

// defaultContainer registers every declared owner as a singleton under its
// owner id.
func defaultContainer(endpoints []*wsnext.Endpoint, handlers []*wsnext.ErrorHandlers) *wsnext.Beans {
	beans := wsnext.NewBeans()
	register := func(id string, owner any) {
		if owner == nil {
			return
		}
		if id == "" {
			id = wsnext.OwnerIDOf(owner)
		}
		beans.Register(id, owner)
	}
	for _, ep := range endpoints {
		for ; ep != nil; ep = ep.Parent {
			register(ep.OwnerID, ep.Owner)
		}
	}
	for _, h := range handlers {
		if h != nil {
			register(h.OwnerID, h.Owner)
		}
	}
	return beans
}

// NewConfig returns a configuration with the given connection settings.
// Engine settings keep their defaults until set on the returned value.
func NewConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn, onConnect OnConnectFn, onDisconnect OnDisconnectFn) ServerConfig {
	return &websocket.ServerConfig{
		Addr:               addr,
		RateLimitConfig:    rateLimitConfig,
		CheckOrigin:        checkOrigin,
		OnConnect:          onConnect,
		OnClientDisconnect: onDisconnect,
	}
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}
