// Command catalog-server serves Spotify artist catalogs as JSON.
//
// Configuration comes from the YAML file named by CONFIG_FILE, if any, with
// environment variables taking precedence. See pkg/config.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/spotify-catalog-client/pkg/auth"
	"github.com/Sternrassler/spotify-catalog-client/pkg/catalog"
	"github.com/Sternrassler/spotify-catalog-client/pkg/client"
	"github.com/Sternrassler/spotify-catalog-client/pkg/config"
	"github.com/Sternrassler/spotify-catalog-client/pkg/logging"
	"github.com/Sternrassler/spotify-catalog-client/pkg/metrics"
	"github.com/Sternrassler/spotify-catalog-client/pkg/ratelimit"
	"github.com/Sternrassler/spotify-catalog-client/pkg/spotify"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logging.Setup(cfg.Logging())
	logger := logging.NewLogger("server")

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid redis_url")
		}
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("redis_url", cfg.RedisURL).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		logger.Info().Str("redis_url", cfg.RedisURL).Msg("Connected to Redis, using shared request gate")
	}

	srv, err := newServer(cfg, redisClient, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create server")
	}

	gin.SetMode(gin.ReleaseMode)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.router(),
	}

	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("market", cfg.Market).
			Int("workers", cfg.WorkerCount).
			Dur("min_interval", cfg.MinInterval()).
			Msg("Starting catalog server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
	logger.Info().Msg("Server stopped")
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// server holds the wired catalog stack.
type server struct {
	catalog      *catalog.Catalog
	orchestrator *catalog.Orchestrator
	redis        *redis.Client
	logger       zerolog.Logger
}

// newServer wires token provider, request gate, client, retrier and catalog.
// A nil redisClient selects the in-process limiter. httpClient, when set,
// is used for both the Web API and the token endpoint.
func newServer(cfg config.Config, redisClient *redis.Client, httpClient *http.Client) (*server, error) {
	var tokens auth.TokenProvider
	if cfg.AccessToken != "" {
		tokens = auth.StaticToken(cfg.AccessToken)
	} else {
		cc, err := auth.NewClientCredentials(cfg.Credentials(), cfg.Policy(), cfg.MaxRetries, logging.NewLogger("auth"))
		if err != nil {
			return nil, err
		}
		if httpClient != nil {
			cc.SetHTTPClient(httpClient)
		}
		tokens = cc
	}

	var gate ratelimit.Gate
	if redisClient != nil {
		gate = ratelimit.NewRedisGate(redisClient, cfg.MinInterval(), logging.NewLogger("ratelimit"))
	} else {
		gate = ratelimit.NewLimiter(cfg.MinInterval(), logging.NewLogger("ratelimit"))
	}

	c, err := client.New(cfg.ClientConfig(), tokens)
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		c.SetTransport(httpClient)
	}

	retrier := client.NewRetrier(gate, cfg.RetryConfig(), logging.NewLogger("retry"))
	cat := catalog.New(spotify.NewAPI(c), retrier, cfg.CatalogOptions(), logging.NewLogger("catalog"))

	return &server{
		catalog:      cat,
		orchestrator: catalog.NewOrchestrator(cat, cfg.WorkerCount, logging.NewLogger("orchestrator")),
		redis:        redisClient,
		logger:       logging.NewLogger("server"),
	}, nil
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID)

	r.GET("/health", healthHandler)
	r.GET("/ready", s.readyHandler)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/artists/:id/albums", s.albumsHandler)
	r.GET("/artists/:id/catalog", s.catalogHandler)
	r.GET("/artists/:id/top-tracks", s.topTracksHandler)
	r.GET("/playlists/:id", s.playlistHandler)
	r.POST("/catalogs", s.multiCatalogHandler)
	r.GET("/tracks", s.tracksHandler)
	r.GET("/albums", s.albumLookupHandler)

	return r
}

// requestID tags each request with a correlation id, honouring one sent by
// the caller.
func (s *server) requestID(c *gin.Context) {
	id := c.GetHeader("X-Request-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Request-ID", id)
	c.Set(logging.FieldRequestID, id)

	start := time.Now()
	c.Next()

	s.logger.Info().
		Str(logging.FieldRequestID, id).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", c.Writer.Status()).
		Dur("duration", time.Since(start)).
		Msg("Handled request")
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// readyHandler reports whether the shared request gate is reachable.
func (s *server) readyHandler(c *gin.Context) {
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("Redis not reachable")
			c.String(http.StatusServiceUnavailable, "Redis not reachable")
			return
		}
	}
	c.String(http.StatusOK, "OK")
}

func (s *server) albumsHandler(c *gin.Context) {
	market := c.DefaultQuery("market", s.catalog.Options().Market)
	coll, err := s.catalog.Collector().CollectAlbums(c.Request.Context(), c.Param("id"), market)
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, coll)
}

func (s *server) catalogHandler(c *gin.Context) {
	cat, err := s.catalog.Fetch(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	if c.Query("format") == "rows" {
		c.JSON(http.StatusOK, gin.H{
			"fetch_id": cat.FetchID,
			"rows":     catalog.Flatten(cat),
			"failures": cat.Failures,
		})
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (s *server) topTracksHandler(c *gin.Context) {
	tracks, err := s.catalog.TopTracks(c.Request.Context(), c.Param("id"), c.Query("market"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": catalog.FlattenTracks(tracks)})
}

func (s *server) playlistHandler(c *gin.Context) {
	pc, err := s.catalog.FetchPlaylist(c.Request.Context(), c.Param("id"))
	if err != nil {
		apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, pc)
}

// queryIDs reads ids from repeated or comma-separated ids parameters.
func queryIDs(c *gin.Context) []string {
	var ids []string
	for _, v := range c.QueryArray("ids") {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (s *server) tracksHandler(c *gin.Context) {
	l, err := s.catalog.FetchTracks(c.Request.Context(), queryIDs(c))
	if err != nil {
		apiError(c, err)
		return
	}
	if c.Query("format") == "rows" {
		c.JSON(http.StatusOK, gin.H{
			"fetch_id":  l.FetchID,
			"rows":      catalog.FlattenTracks(l.Ordered()),
			"invalid":   l.Invalid,
			"not_found": l.NotFound,
			"failures":  l.Failures,
		})
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *server) albumLookupHandler(c *gin.Context) {
	l, err := s.catalog.FetchAlbums(c.Request.Context(), queryIDs(c))
	if err != nil {
		apiError(c, err)
		return
	}
	if c.Query("format") == "rows" {
		c.JSON(http.StatusOK, gin.H{
			"fetch_id":  l.FetchID,
			"rows":      l.Rows(),
			"invalid":   l.Invalid,
			"not_found": l.NotFound,
			"failures":  l.Failures,
		})
		return
	}
	c.JSON(http.StatusOK, l)
}

type multiCatalogRequest struct {
	ArtistIDs []string `json:"artist_ids" binding:"required,min=1"`
	Workers   int      `json:"workers"`
}

// artistResult is one entry of a multi-artist response.
type artistResult struct {
	Catalog *catalog.ArtistCatalog `json:"catalog,omitempty"`
	Error   string                 `json:"error,omitempty"`
	Kind    client.ErrorKind       `json:"kind,omitempty"`
}

func (s *server) multiCatalogHandler(c *gin.Context) {
	var req multiCatalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workers := poolSize(req.Workers, s.orchestrator.Workers())
	results := s.orchestrator.FetchMultiple(c.Request.Context(), req.ArtistIDs, workers)

	out := make(map[string]artistResult, len(results))
	for id, cat := range results {
		r := artistResult{Catalog: cat}
		if cat.Err != nil {
			r.Error = cat.Err.Error()
			r.Kind = client.KindOf(cat.Err)
		}
		out[id] = r
	}
	c.JSON(http.StatusOK, gin.H{"artists": out})
}

// poolSize lets a request lower the worker pool but never raise it above
// the configured size.
func poolSize(requested, configured int) int {
	if requested > 0 && requested < configured {
		return requested
	}
	return configured
}

// apiError maps a fetch error to an HTTP status.
func apiError(c *gin.Context, err error) {
	status := http.StatusBadGateway
	var apiErr *client.APIError

	switch {
	case errors.Is(err, catalog.ErrInvalidID), errors.Is(err, catalog.ErrInvalidMarket):
		status = http.StatusBadRequest
	case errors.Is(err, client.ErrContextCancelled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  client.KindOf(err),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
