package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
	"messaging-service/internal/services"
)

// AuthHandler serves registration, login and token refresh.
type AuthHandler struct {
	users  UserService
	tokens TokenIssuer
}

func NewAuthHandler(users UserService, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type tokenResponse struct {
	auth.TokenPair
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// Register creates an account and returns it with a fresh token pair.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	pair, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": pair})
}

// Login exchanges credentials for a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	h.respondWithTokens(c, user)
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh is required"})
		return
	}

	userID, pair, err := h.tokens.Refresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "code": "unauthenticated"})
		return
	}
	if _, err := h.users.Principal(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: pair, UserID: userID.String()})
}

func (h *AuthHandler) respondWithTokens(c *gin.Context, user models.User) {
	pair, err := h.tokens.Issue(user.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: pair, UserID: user.ID.String(), Username: user.Username})
}
