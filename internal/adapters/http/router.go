package http

import (
	"context"
	"net/http"

	"github.com/dkeye/LiveCall/internal/adapters/signal"
	"github.com/dkeye/LiveCall/internal/app/relay"
	"github.com/dkeye/LiveCall/internal/config"
	"github.com/dkeye/LiveCall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	tokenCookie = "ct"
	nameKey     = "name"
	cookieAge   = 3600 * 24 * 30
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware(secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(tokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(tokenCookie, token, cookieAge, "/", "", secure, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the relay endpoints. gatherer may be nil when metrics
// are not exposed.
func SetupRouter(ctx context.Context, cfg *config.Config, orch *relay.Orchestrator, gatherer prometheus.Gatherer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	// Relay and identity are reached over plain http by default, so the
	// session cookie is only Secure when configured for TLS.
	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cookieAge,
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("LiveCallSessions", store))
	r.Use(ClientTokenMiddleware(cfg.SecureCookies))

	ctrl := signal.NewSignalWSController(orch, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	})

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "channels": orch.Registry.Len()})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.GET("/identity", identity)
	api.GET("/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, orch.Registry.Online())
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

// identity is a development identity provider: the client token is the
// user id and the display name lives in the cookie session.
func identity(c *gin.Context) {
	sess := sessions.Default(c)
	name, _ := sess.Get(nameKey).(string)
	if q := c.Query("name"); q != "" {
		name = q
	}
	if name == "" {
		name = "guest"
	}

	u, err := domain.NewUser(domain.UserID(c.GetString("client_token")), name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess.Set(nameKey, u.Name)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
	}
	c.JSON(http.StatusOK, u)
}
