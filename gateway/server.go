package gateway

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"

	"github.com/convictiond/oracled/cache"
	"github.com/convictiond/oracled/chainadapter"
	"github.com/convictiond/oracled/config"
	"github.com/convictiond/oracled/fanout"
	"github.com/convictiond/oracled/ingest"
	"github.com/convictiond/oracled/kcalculator"
	"github.com/convictiond/oracled/store"
	"github.com/convictiond/oracled/tokenscorer"
)

// Gateway wires every component the HTTP/WS surface touches: the Store
// directly for reads the dashboard needs, the K Calculator, the Token
// Scorer, the ingest Pipeline (for the push webhook route), the fan-out
// Hub/Dispatcher, and the shared cache namespaces. It owns route
// registration and the middleware chain from spec.md §4.8.
type Gateway struct {
	store       store.Store
	chain       chainadapter.ChainAdapter
	kcalc       *kcalculator.Calculator
	kcalcCfg    kcalculator.Config
	tokenScorer *tokenscorer.Scorer
	pipeline    *ingest.Pipeline
	hub         *fanout.Hub
	dispatcher  *fanout.Dispatcher
	cacheNS     *cache.Namespaces
	cfg         config.Config
	log         *logrus.Entry
	resolver    *cachedResolver
	limiter     *Limiter
	cors        corsConfig

	router    *httprouter.Router
	startedAt time.Time

	// syncTrigger, when set by cmd/oracled, runs one poll tick immediately
	// on demand for the admin /k-metric/sync endpoint. A nil trigger just
	// reports accepted without doing anything extra, since the regular
	// poll ticker will catch up on its own schedule regardless.
	syncTrigger func() error
}

// SetSyncTrigger wires the admin-triggered immediate poll. Called once by
// cmd/oracled after both the Gateway and the poller exist.
func (g *Gateway) SetSyncTrigger(fn func() error) {
	g.syncTrigger = fn
}

func New(
	s store.Store,
	chain chainadapter.ChainAdapter,
	kcalc *kcalculator.Calculator,
	kcalcCfg kcalculator.Config,
	tokenScorer *tokenscorer.Scorer,
	pipeline *ingest.Pipeline,
	hub *fanout.Hub,
	dispatcher *fanout.Dispatcher,
	cacheNS *cache.Namespaces,
	cfg config.Config,
	log *logrus.Entry,
) *Gateway {
	g := &Gateway{
		store:       s,
		chain:       chain,
		kcalc:       kcalc,
		kcalcCfg:    kcalcCfg,
		tokenScorer: tokenScorer,
		pipeline:    pipeline,
		hub:         hub,
		dispatcher:  dispatcher,
		cacheNS:     cacheNS,
		cfg:         cfg,
		log:         log,
		resolver:    newCachedResolver(s, cacheNS.ApiKey),
		limiter:     NewLimiter(cacheNS.RateLimit),
		cors:        newCORSConfig(cfg.CORSOrigins),
		startedAt:   time.Now().UTC(),
	}
	g.router = httprouter.New()
	g.registerRoutes()
	return g
}

// ServeHTTP lets Gateway itself be passed straight to http.Server.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// NewServer builds the http.Server wrapping Gateway, with read/write
// timeouts set at the server level so slow-loris protection does not
// depend on a per-handler deadline (spec.md §4.8 step 5's note).
func (g *Gateway) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           g,
		ReadTimeout:       slowLorisTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// common is the middleware chain every route (other than the WS upgrade,
// which needs a relaxed body limit) runs through, in the order spec.md
// §4.8 enumerates.
func (g *Gateway) common(h httprouter.Handle) httprouter.Handle {
	return chain(h,
		securityHeaders(g.cfg.Production),
		cors(g.cors),
		apiKey(g.resolver),
		rateLimit(g.limiter),
		bodyLimit(),
		requestID(),
		usageAccounting(g.store),
		maintenance(func() bool { return g.cfg.Maintenance }),
	)
}

func (g *Gateway) admin(h httprouter.Handle) httprouter.Handle {
	return g.common(requireAdmin(g.cfg.AdminKey)(h))
}

func (g *Gateway) registerRoutes() {
	r := g.router

	r.GET("/k-metric", g.common(g.handleKMetric))
	r.GET("/k-metric/history", g.common(g.handleKMetricHistory))
	r.GET("/k-metric/holders", g.common(g.handleHolders))
	r.GET("/k-metric/status", g.common(g.handleStatus))
	r.GET("/k-metric/wallet/:addr/k-score", g.common(g.handleWalletKScore))
	r.GET("/k-metric/wallet/:addr/k-global", g.common(g.handleWalletKGlobal))
	r.POST("/k-metric/webhook", g.common(g.handlePushWebhook))
	r.POST("/k-metric/sync", g.admin(g.handleTriggerSync))
	r.POST("/k-metric/backup", g.admin(g.handleTriggerBackup))

	r.GET("/api/v1/status", g.common(g.handleOracleStatus))
	r.GET("/api/v1/token/:mint", g.common(g.handleOracleToken))
	r.GET("/api/v1/wallet/:addr", g.common(g.handleOracleWallet))
	r.POST("/api/v1/wallets", g.common(g.handleOracleWalletsBatch))
	r.POST("/api/v1/tokens", g.common(g.handleOracleTokensBatch))
	r.GET("/api/v1/holders", g.common(g.handleHolders))

	r.GET("/api/v1/webhooks/events", g.common(g.handleWebhookEvents))
	r.GET("/api/v1/webhooks", g.common(g.handleListWebhooks))
	r.POST("/api/v1/webhooks", g.common(g.handleCreateWebhook))
	r.GET("/api/v1/webhooks/:id", g.common(g.handleGetWebhook))
	r.DELETE("/api/v1/webhooks/:id", g.common(g.handleDeleteWebhook))
	r.GET("/api/v1/webhooks/:id/deliveries", g.common(g.handleWebhookDeliveries))

	r.GET("/admin/api-keys", g.admin(g.handleListApiKeys))
	r.POST("/admin/api-keys", g.admin(g.handleCreateApiKey))
	r.DELETE("/admin/api-keys/:id", g.admin(g.handleDeactivateApiKey))
	r.GET("/admin/usage/:id", g.admin(g.handleUsageStats))
	r.POST("/admin/k/recalculate", g.admin(g.handleAdminRecalculate))
	r.POST("/admin/wallets/:addr/rescan", g.admin(g.handleAdminWalletRescan))
	r.GET("/admin/queue/:kind", g.admin(g.handleAdminQueueStatus))

	r.GET("/ws", g.handleWS)
}
