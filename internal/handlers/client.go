package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-client/internal/controller"
)

// ClientHandler exposes the auth and chat screens to the page.
type ClientHandler struct {
	ctrl *controller.Controller
}

// NewClientHandler builds a ClientHandler.
func NewClientHandler(ctrl *controller.Controller) *ClientHandler {
	return &ClientHandler{ctrl: ctrl}
}

// Register wires the page API onto router.
func (h *ClientHandler) Register(router gin.IRouter) {
	api := router.Group("/api")
	api.GET("/state", h.State)
	api.POST("/login", h.Login)
	api.POST("/signup", h.SignUp)
	api.POST("/logout", h.Logout)
	api.GET("/chats", h.ListChats)
	api.POST("/chats", h.CreateChat)
	api.POST("/chats/:chat_id/select", h.SelectChat)
	api.POST("/messages", h.SendMessage)
	api.GET("/invites", h.ListInvites)
	api.POST("/invites", h.SendInvite)
	api.POST("/invites/:invite_id/accept", h.AcceptInvite)
	api.POST("/invites/:invite_id/decline", h.DeclineInvite)
}

// State returns the current client snapshot.
func (h *ClientHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *ClientHandler) Login(c *gin.Context) {
	var form controller.LoginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctrl.Login(requestContext(c), form); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *ClientHandler) SignUp(c *gin.Context) {
	var form controller.SignUpForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.ctrl.SignUp(requestContext(c), form); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (h *ClientHandler) Logout(c *gin.Context) {
	if err := h.ctrl.Logout(requestContext(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.State())
}

func (h *ClientHandler) ListChats(c *gin.Context) {
	chats, err := h.ctrl.RefreshChats(requestContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

func (h *ClientHandler) CreateChat(c *gin.Context) {
	var form controller.ChatForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := h.ctrl.CreateChat(requestContext(c), form)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chat)
}

// SelectChat switches the active chat and restarts the feed.
func (h *ClientHandler) SelectChat(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	if err := h.ctrl.SelectChat(chatID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.ctrl.State())
}

// SendMessage posts to the active chat.
func (h *ClientHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := h.ctrl.SendMessage(requestContext(c), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ClientHandler) ListInvites(c *gin.Context) {
	invites, err := h.ctrl.RefreshInvites(requestContext(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invites})
}

func (h *ClientHandler) SendInvite(c *gin.Context) {
	var form controller.InviteForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.ctrl.SendInvite(requestContext(c), form)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (h *ClientHandler) AcceptInvite(c *gin.Context) {
	inviteID, ok := inviteIDParam(c)
	if !ok {
		return
	}
	inv, err := h.ctrl.AcceptInvite(requestContext(c), inviteID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *ClientHandler) DeclineInvite(c *gin.Context) {
	inviteID, ok := inviteIDParam(c)
	if !ok {
		return
	}
	inv, err := h.ctrl.DeclineInvite(requestContext(c), inviteID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func inviteIDParam(c *gin.Context) (int, bool) {
	inviteID, err := strconv.Atoi(c.Param("invite_id"))
	if err != nil || inviteID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid invite id"})
		return 0, false
	}
	return inviteID, true
}
