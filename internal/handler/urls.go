package handlers

import (
	"github.com/code-100-precent/calltrack/internal/analytics"
	"github.com/code-100-precent/calltrack/internal/callflow"
	"github.com/code-100-precent/calltrack/internal/routing"
	"github.com/code-100-precent/calltrack/pkg/cache"
	"github.com/code-100-precent/calltrack/pkg/config"
	"github.com/code-100-precent/calltrack/pkg/events"
	"github.com/code-100-precent/calltrack/pkg/logger"
	"github.com/code-100-precent/calltrack/pkg/metrics"
	"github.com/code-100-precent/calltrack/pkg/middleware"
	"github.com/code-100-precent/calltrack/pkg/signature"
	"github.com/code-100-precent/calltrack/pkg/websocket"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handlers struct {
	db         *gorm.DB
	cfg        *config.Config
	cache      cache.Cache
	resolver   *routing.Resolver
	reconciler *callflow.Reconciler
	calls      *analytics.Service
	validator  *signature.Validator
	wsHub      *websocket.Hub
	metrics    *metrics.Metrics
}

// Deps collaborators shared with the rest of the process; nil fields get defaults.
// The hub is subscribed to the bus here, callers must not attach it again.
type Deps struct {
	Cache   cache.Cache
	Bus     *events.EventBus
	Hub     *websocket.Hub
	Metrics *metrics.Metrics
}

func NewHandlers(db *gorm.DB, cfg *config.Config, deps Deps) *Handlers {
	if cfg == nil {
		cfg = config.GlobalConfig
	}
	if deps.Bus == nil {
		deps.Bus = events.GetEventBus()
	}
	if deps.Hub == nil {
		deps.Hub = websocket.NewHub(websocket.LoadConfigFromEnv())
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics()
	}
	m := deps.Metrics

	deps.Bus.Subscribe("*", func(e events.Event) error {
		m.RecordTransition(e.Type)
		return nil
	})
	deps.Hub.Attach(deps.Bus)

	return &Handlers{
		db:       db,
		cfg:      cfg,
		cache:    deps.Cache,
		resolver: routing.NewResolver(db, routing.WithTimeout(cfg.StoreTimeout)),
		reconciler: callflow.NewReconciler(db,
			callflow.WithStoreTimeout(cfg.StoreTimeout),
			callflow.WithEventBus(deps.Bus),
		),
		calls: analytics.NewService(db, analytics.Options{
			Cache:        deps.Cache,
			CacheTTL:     cfg.MetricsCacheTTL,
			RowLimit:     cfg.MetricsRowLimit,
			Location:     cfg.ReportLocation(),
			StoreTimeout: cfg.StoreTimeout,
			OnCache: func(hit bool) {
				if hit {
					m.RecordCacheHit("metrics")
				} else {
					m.RecordCacheMiss("metrics")
				}
			},
		}),
		validator: signature.NewValidator(cfg.ProviderAuthToken),
		wsHub:     deps.Hub,
		metrics:   m,
	}
}

// Analytics the read-side service, shared with scheduled tasks
func (h *Handlers) Analytics() *analytics.Service {
	return h.calls
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/health", h.Health)
	monitorPrefix := h.cfg.MonitorPrefix
	if monitorPrefix == "" {
		monitorPrefix = "/metrics"
	}
	engine.GET(monitorPrefix, gin.WrapH(h.metrics.Handler()))

	apiPrefix := h.cfg.APIPrefix
	if apiPrefix == "" {
		apiPrefix = "/api"
	}
	r := engine.Group(apiPrefix)

	// Provider webhooks
	voice := r.Group("/voice", middleware.ProviderSignature(h.validator, h.cfg.PublicBaseURL))
	{
		voice.POST("/inbound", h.HandleInbound)
		voice.POST("/status", h.HandleStatus)
		voice.POST("/recording", h.HandleRecording)
		voice.POST("/voicemail", h.HandleVoicemail)
	}

	// Read API
	guards := []gin.HandlerFunc{middleware.APIKeyAuth(h.cfg.APISecretKey)}
	if h.cfg.RateLimit != "" {
		limit, err := middleware.RateLimit(h.cfg.RateLimit, h.redisClient())
		if err != nil {
			logger.Warn("rate limit disabled", zap.String("rate", h.cfg.RateLimit), zap.Error(err))
		} else {
			guards = append(guards, limit)
		}
	}
	calls := r.Group("/calls", guards...)
	{
		calls.GET("", h.ListCalls)
		calls.GET("/metrics", h.GetCallMetrics)
		calls.GET("/live", h.LiveCalls)
		calls.GET("/:id", h.GetCall)
	}
}

func (h *Handlers) redisClient() *redis.Client {
	if rc, ok := h.cache.(*cache.RedisCache); ok {
		return rc.Client()
	}
	return nil
}
