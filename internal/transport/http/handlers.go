package http

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dkeye/LocShare/internal/app"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type CreateRoomResponse struct {
	Token            string `json:"token"`
	Link             string `json:"link"`
	ExpiresInMinutes int    `json:"expiresInMinutes"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RoomHandler struct {
	Registry   *app.Registry
	BaseURL    string
	StaticPath string
}

func NewRoomHandler(reg *app.Registry, baseURL, staticPath string) *RoomHandler {
	return &RoomHandler{
		Registry:   reg,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		StaticPath: staticPath,
	}
}

// CreateRoom issues a room and the shareable link pointing at it.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	room, err := h.Registry.CreateRoom(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Msg("create room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "could not create room"})
		return
	}

	c.JSON(http.StatusOK, CreateRoomResponse{
		Token:            room.Token,
		Link:             h.BaseURL + "/r/" + room.Token,
		ExpiresInMinutes: int(h.Registry.TTL().Minutes()),
	})
}

// ServeApp hands every room link to the client bundle.
func (h *RoomHandler) ServeApp(c *gin.Context) {
	c.File(filepath.Join(h.StaticPath, "index.html"))
}

func Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
