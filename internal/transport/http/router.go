package adminhttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradewind/internal/bot"
	"tradewind/internal/ledger"
	"tradewind/internal/logger"
	"tradewind/internal/reconcile"
	"tradewind/internal/stats"
)

// defaultUser backs single-operator deployments where no user_id is sent.
const defaultUser = "default"

// Router exposes the bot-control and ledger-view endpoints.
type Router struct {
	Bots       *bot.Manager
	Reconciler *reconcile.Reconciler
	Store      *ledger.Store
}

func NewRouter(bots *bot.Manager, reconciler *reconcile.Reconciler, store *ledger.Store) *Router {
	return &Router{Bots: bots, Reconciler: reconciler, Store: store}
}

// Register mounts the routes under the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/bot/start", r.handleBotStart)
	group.POST("/bot/stop", r.handleBotStop)
	group.GET("/bot/status", r.handleBotStatus)
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/stats", r.handleStats)
	group.GET("/signals/latest", r.handleLatestSignals)
}

func userID(c *gin.Context) string {
	id := strings.TrimSpace(c.DefaultQuery("user_id", defaultUser))
	if id == "" {
		return defaultUser
	}
	return id
}

func (r *Router) handleBotStart(c *gin.Context) {
	user := userID(c)
	// The loop must outlive this request; it stops via /bot/stop or process
	// shutdown, not via the request context.
	if err := r.Bots.Start(context.Background(), user); err != nil {
		logger.Warnf("[api] bot start failed user=%s ip=%s err=%v", user, c.ClientIP(), err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] bot start user=%s ip=%s", user, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bot": r.Bots.Status(user)})
}

func (r *Router) handleBotStop(c *gin.Context) {
	user := userID(c)
	if err := r.Bots.Stop(c.Request.Context(), user); err != nil {
		logger.Warnf("[api] bot stop failed user=%s ip=%s err=%v", user, c.ClientIP(), err)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	logger.Infof("[api] bot stop user=%s ip=%s", user, c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"status": "ok", "bot": r.Bots.Status(user)})
}

func (r *Router) handleBotStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bot": r.Bots.Status(userID(c))})
}

func (r *Router) handlePositions(c *gin.Context) {
	user := userID(c)
	ctx, cancel := contextWithTimeout(c, 10*time.Second)
	defer cancel()
	positions, err := r.Reconciler.CurrentPositions(ctx, user)
	if err != nil {
		logger.Errorf("[api] positions failed user=%s err=%v", user, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handleTrades(c *gin.Context) {
	user := userID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	trades, err := r.Reconciler.CompletedTrades(c.Request.Context(), user, limit, offset)
	if err != nil {
		logger.Errorf("[api] trades failed user=%s err=%v", user, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"limit":  limit,
		"offset": offset,
	})
}

func (r *Router) handleStats(c *gin.Context) {
	user := userID(c)
	rows, err := r.Store.AllRows(c.Request.Context(), user)
	if err != nil {
		logger.Errorf("[api] stats failed user=%s err=%v", user, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats.Compute(rows).Round()})
}

func (r *Router) handleLatestSignals(c *gin.Context) {
	signals := r.Bots.Bot(userID(c)).LatestSignals()
	c.JSON(http.StatusOK, gin.H{"signals": signals, "count": len(signals)})
}

func contextWithTimeout(c *gin.Context, d time.Duration) (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
