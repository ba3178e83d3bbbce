package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/dto"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/adapters/transport/http/middleware"
	"github.com/Miraines/MoonyAndStarry/auth-gateway/internal/infra/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type clientIPKey struct{}

type route struct {
	config.Route
	proxy *httputil.ReverseProxy
}

func (r *route) matches(path string) bool {
	if r.Prefix == "/" || path == r.Prefix {
		return true
	}
	p := strings.TrimSuffix(r.Prefix, "/")
	return strings.HasPrefix(path, p+"/")
}

// Dispatcher proxies each request to the route with the longest matching
// prefix. Routes flagged Auth pass through the Filter first.
type Dispatcher struct {
	routes []*route
	filter *Filter
	log    *zap.Logger
}

func NewDispatcher(routes []config.Route, filter *Filter, log *zap.Logger) (*Dispatcher, error) {
	d := &Dispatcher{filter: filter, log: log}

	for _, rc := range routes {
		target, err := url.Parse(rc.Upstream)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("route %s: bad upstream %q", rc.Prefix, rc.Upstream)
		}
		d.routes = append(d.routes, &route{Route: rc, proxy: d.newProxy(rc, target)})
	}

	sort.SliceStable(d.routes, func(i, j int) bool {
		return len(d.routes[i].Prefix) > len(d.routes[j].Prefix)
	})
	return d, nil
}

func (d *Dispatcher) newProxy(rc config.Route, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if rc.StripPrefix {
				trimmed := strings.TrimPrefix(pr.In.URL.Path, strings.TrimSuffix(rc.Prefix, "/"))
				if !strings.HasPrefix(trimmed, "/") {
					trimmed = "/" + trimmed
				}
				pr.Out.URL.Path = trimmed
				pr.Out.URL.RawPath = ""
			}
			pr.SetURL(target)
			pr.SetXForwarded()
			// the client as resolved through our own trusted proxies, not
			// whichever hop dialed us
			if ip, ok := pr.In.Context().Value(clientIPKey{}).(string); ok && ip != "" {
				pr.Out.Header.Set("X-Forwarded-For", ip)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			d.log.Error("upstream request failed",
				zap.String("route", rc.Prefix), zap.String("path", r.URL.Path), zap.Error(err))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"Bad gateway"}`))
		},
	}
}

func (d *Dispatcher) match(path string) *route {
	for _, r := range d.routes {
		if r.matches(path) {
			return r
		}
	}
	return nil
}

// Handle is meant for gin's NoRoute so /health and /metrics stay local.
func (d *Dispatcher) Handle(c *gin.Context) {
	c.Request.Header.Del(UserIDHeader)

	r := d.match(c.Request.URL.Path)
	if r == nil {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Not found"})
		return
	}
	c.Set(middleware.RouteKey, r.Prefix)

	if r.Auth && !d.filter.Authorize(c) {
		return
	}
	ctx := context.WithValue(c.Request.Context(), clientIPKey{}, c.ClientIP())
	r.proxy.ServeHTTP(c.Writer, c.Request.WithContext(ctx))
}
