package server

import (
	"net/http"
	"time"

	"form-backend/config"
	"form-backend/logging"
	"form-backend/session"

	"github.com/gin-contrib/cors"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Routes is a route collaborator mounted under a path prefix.
type Routes interface {
	Mount(g *gin.RouterGroup)
}

// Group mounts Routes under Prefix.
type Group struct {
	Prefix string
	Routes Routes
}

// Pipeline lists what NewEngine assembles.
type Pipeline struct {
	Config   *config.Config
	Log      *zap.Logger
	Sessions *session.Manager
	// Metrics is optional.
	Metrics *Metrics
	Groups  []Group
}

// NewEngine builds the request pipeline. Stages run in the order they are
// added; the static stage answers on its own and never reaches the session
// stage, unmatched requests end in NotFound.
func NewEngine(p Pipeline) *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.MaxMultipartMemory = p.Config.MaxUploadBytes

	engine.Use(logging.Middleware(p.Log))
	if p.Metrics != nil {
		engine.Use(p.Metrics.Middleware())
	}
	engine.Use(
		Recovery(p.Log),
		ErrorHandler(p.Log),
		cors.New(corsConfig(p.Config)),
		BodyLimit(p.Config.MaxBodyBytes),
	)

	uploads := serveUploads(p.Config.UploadDir)
	engine.GET(config.UploadPrefix+"/*filepath", uploads)
	engine.HEAD(config.UploadPrefix+"/*filepath", uploads)

	engine.Use(p.Sessions.Middleware())
	for _, g := range p.Groups {
		g.Routes.Mount(engine.Group(g.Prefix))
	}

	engine.NoRoute(NotFound)
	return engine
}

// Handler is the engine as served: a trailing slash on the path is dropped
// before routing, so "/api/form/" and "/api/form" reach the same route.
func Handler(engine *gin.Engine) http.Handler {
	return middleware.StripSlashes(engine)
}

// serveUploads answers with a regular file from dir. Directories and missing
// files end in NotFound.
func serveUploads(dir string) gin.HandlerFunc {
	root := gin.Dir(dir, false)
	return func(c *gin.Context) {
		f, err := root.Open(c.Param("filepath"))
		if err != nil {
			NotFound(c)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil || info.IsDir() {
			NotFound(c)
			return
		}
		http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
	}
}

func corsConfig(cfg *config.Config) cors.Config {
	return cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// BodyLimit caps the request body. Decoding happens in the handlers through
// gin binding, which picks JSON, URL-encoded or multipart by content type.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
