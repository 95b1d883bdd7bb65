package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/andresuchdata/audiodrive/backend-go/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const oauthStateCookie = "oauth_state"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthHandler struct {
	auth  *auth.Authenticator
	oauth *oauth2.Config
}

// NewAuthHandler wires login and, when oauthCfg is not nil, the consent flow
// that mints a Drive refresh token.
func NewAuthHandler(a *auth.Authenticator, oauthCfg *oauth2.Config) *AuthHandler {
	return &AuthHandler{auth: a, oauth: oauthCfg}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, expiresAt, err := h.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		respondError(c, err, "failed to issue token")
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expiresAt": expiresAt})
}

// StartOAuth redirects to the Google consent page asking for offline access.
func (h *AuthHandler) StartOAuth(c *gin.Context) {
	if h.oauth == nil || h.oauth.ClientID == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "oauth client is not configured"})
		return
	}

	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, int((10 * time.Minute).Seconds()), "/", "", c.Request.TLS != nil, true)

	c.Redirect(http.StatusFound, h.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce))
}

// OAuthCallback exchanges the code and shows the refresh token once so it
// can be put into REFRESH_TOKEN.
func (h *AuthHandler) OAuthCallback(c *gin.Context) {
	if h.oauth == nil || h.oauth.ClientID == "" {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "oauth client is not configured"})
		return
	}

	state, err := c.Cookie(oauthStateCookie)
	if err != nil || state == "" || state != c.Query("state") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid oauth state"})
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing authorization code"})
		return
	}

	token, err := h.oauth.Exchange(c.Request.Context(), code)
	if err != nil {
		log.Error().Err(err).Msg("oauth code exchange failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authentication failed"})
		return
	}

	log.Info().Bool("refresh_token", token.RefreshToken != "").Msg("oauth consent completed")
	c.JSON(http.StatusOK, gin.H{
		"message":      "Authentication successful. Set REFRESH_TOKEN and restart the server.",
		"refreshToken": token.RefreshToken,
	})
}
