// Package api serves the analysis catalog and the raw bridge over HTTP.
//
// Every analysis request runs in its own worker process. The response
// carries the invocation id and terminal status; a completed call adds the
// captured output as "stats" and the native result under the operation's
// result field.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/tck-bridge/analysis"
	"github.com/wippyai/tck-bridge/invoke"
)

// MaxBodySize bounds a request body. Models larger than this are refused
// before anything is written to disk.
const MaxBodySize = 32 << 20

// Runner runs catalog operations. *analysis.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, op string, values map[string]any, opts ...invoke.CallOption) (*invoke.Outcome, error)
	Catalog() *analysis.Catalog
}

// Caller makes raw bridge calls. *invoke.Invoker satisfies it.
type Caller interface {
	Call(ctx context.Context, symbol string, params []string, returns string, args []any, opts ...invoke.CallOption) (*invoke.Outcome, error)
}

// Server holds the HTTP handlers' dependencies.
type Server struct {
	runner   Runner
	caller   Caller
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithRawInvoke enables POST /v1/invoke, which calls any exported symbol
// with caller-supplied type tags.
func WithRawInvoke(c Caller) Option {
	return func(s *Server) { s.caller = c }
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server over r.
func New(r Runner, opts ...Option) *Server {
	s := &Server{runner: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the gin engine with every route installed.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(
		ginzap.RecoveryWithZap(s.logger, true),
		s.requestLog(),
		corsPolicy(),
		otelgin.Middleware("tckbridge"),
	)

	s.setupRoutes(router)
	return router
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.health)
	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	syntax := router.Group("/tck_syntax")
	{
		syntax.PUT("/check", s.modelText("syntax.check"))
		syntax.PUT("/to_dot", s.modelText("syntax.to_dot"))
		syntax.PUT("/to_json", s.modelText("syntax.to_json"))
		syntax.PUT("/create_synchronized_product", s.operation("syntax.create_synchronized_product"))
	}
	router.PUT("/tck_reach", s.operation("reach"))
	router.PUT("/tck_liveness", s.operation("liveness"))
	router.PUT("/tck_compare", s.operation("compare"))
	simulate := router.Group("/tck_simulate")
	{
		simulate.PUT("/one_step", s.operation("simulate.one_step"))
		simulate.PUT("/randomized", s.operation("simulate.randomized"))
	}

	v1 := router.Group("/v1")
	{
		v1.GET("/operations", s.listOperations)
		v1.GET("/operations/:name", s.describeOperation)
		v1.PUT("/operations/:name", s.namedOperation)
		if s.caller != nil {
			v1.POST("/invoke", s.rawInvoke)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// requestLog logs one line per request, tagged with the invocation id when
// the request ran one.
func (s *Server) requestLog() gin.HandlerFunc {
	return ginzap.GinzapWithConfig(s.logger, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/metrics"},
		Context: func(c *gin.Context) []zapcore.Field {
			if id := c.Writer.Header().Get(invocationHeader); id != "" {
				return []zapcore.Field{zap.String("id", id)}
			}
			return nil
		},
	})
}

// corsPolicy allows any origin, matching a browser front end served elsewhere.
func corsPolicy() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "traceparent"},
		ExposeHeaders:   []string{invocationHeader},
		MaxAge:          12 * time.Hour,
	})
}
