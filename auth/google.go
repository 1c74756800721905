package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"form-backend/config"
	"form-backend/db"
	"form-backend/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	keyOAuthState = "oauth_state"
)

// NewGoogleConfig returns nil when no Google client is configured.
func NewGoogleConfig(cfg *config.Config) *oauth2.Config {
	if !cfg.GoogleEnabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.Google.RedirectURL,
		Scopes: []string{
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"openid",
		},
		Endpoint: google.Endpoint,
	}
}

type googleUser struct {
	Sub       string `json:"sub"`
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	GivenName string `json:"given_name"`
}

func (h *Handler) GoogleLogin(c *gin.Context) {
	state, err := newState()
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sessions.Put(c, keyOAuthState, state)

	url := h.opts.Google.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent select_account"))
	c.Redirect(http.StatusTemporaryRedirect, url)
}

func (h *Handler) GoogleCallback(c *gin.Context) {
	expected := h.sessions.PopString(c, keyOAuthState)
	if expected == "" || c.Query("state") != expected {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid state parameter"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Missing code parameter"})
		return
	}

	ctx := c.Request.Context()
	token, err := h.opts.Google.Exchange(ctx, code)
	if err != nil {
		h.log.Warn("google token exchange", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"message": "Failed to exchange token"})
		return
	}

	profile, err := h.fetchGoogleUser(c, token)
	if err != nil {
		h.log.Warn("google userinfo", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"message": "Failed to get user info"})
		return
	}

	user, err := h.users.FindByEmail(ctx, profile.Email)
	switch {
	case errors.Is(err, db.ErrNotFound):
		user = &models.User{
			GoogleID: profile.Sub,
			Email:    profile.Email,
			Name:     profile.Name,
		}
		if user.Name == "" {
			user.Name = profile.GivenName
		}
		if err := h.users.Create(ctx, user); err != nil {
			_ = c.Error(err)
			return
		}
		h.log.Info("user registered with google", zap.String("user_id", user.ID.Hex()))
	case err != nil:
		_ = c.Error(err)
		return
	case user.GoogleID == "":
		c.JSON(http.StatusConflict, gin.H{"message": "Email registered with password. Use email login."})
		return
	}

	if err := h.sessions.SetUserID(c, user.ID.Hex()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Redirect(http.StatusFound, h.opts.RedirectURL)
}

func (h *Handler) fetchGoogleUser(c *gin.Context, token *oauth2.Token) (*googleUser, error) {
	resp, err := h.opts.Google.Client(c.Request.Context(), token).Get(h.opts.UserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %s", resp.Status)
	}

	var u googleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	if u.Sub == "" {
		u.Sub = u.ID
	}
	if u.Sub == "" || u.Email == "" {
		return nil, errors.New("userinfo missing id or email")
	}
	u.Email = NormalizeEmail(u.Email)
	return &u, nil
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
