package controller

import (
	"net/http"
	"time"

	"contestjudge/internal/standings/model"
	"contestjudge/internal/standings/service"
	"contestjudge/pkg/utils/logger"
	"contestjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// StandingsResponse is the body of the standings query.
type StandingsResponse struct {
	ContestID string           `json:"contest_id"`
	Standings []model.Standing `json:"standings"`
}

// StandingsController serves leaderboards over HTTP and websocket.
type StandingsController struct {
	standingsService *service.StandingsService
	upgrader         websocket.Upgrader
}

func NewStandingsController(standingsService *service.StandingsService) *StandingsController {
	return &StandingsController{
		standingsService: standingsService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Get handles GET /contests/:contest_id/standings.
func (h *StandingsController) Get(c *gin.Context) {
	contestID := c.Param("contest_id")
	rows, err := h.standingsService.GetStandings(c.Request.Context(), contestID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if rows == nil {
		rows = []model.Standing{}
	}
	response.Success(c, StandingsResponse{ContestID: contestID, Standings: rows})
}

// Stream handles GET /contests/:contest_id/standings/stream. The connection
// receives the current board, then every update until either side closes.
func (h *StandingsController) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	updates, cancel, err := h.standingsService.Subscribe(ctx, c.Param("contest_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(ctx, "standings stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(update); err != nil {
				logger.Debug(ctx, "standings stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-ctx.Done():
			return
		}
	}
}
