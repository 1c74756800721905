package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"form-backend/db"
	"form-backend/models"
	"form-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

var validate = validator.New()

type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type Options struct {
	// Google enables the /google routes when set.
	Google *oauth2.Config
	// UserInfoURL defaults to Google's OpenID userinfo endpoint.
	UserInfoURL string
	// RedirectURL is where the browser is sent after Google sign-in.
	RedirectURL string
}

type Handler struct {
	users    UserStore
	tokens   *Tokens
	sessions *session.Manager
	opts     Options
	log      *zap.Logger
}

func NewHandler(users UserStore, tokens *Tokens, sessions *session.Manager, opts Options, log *zap.Logger) *Handler {
	if opts.UserInfoURL == "" {
		opts.UserInfoURL = googleUserInfoURL
	}
	return &Handler{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		opts:     opts,
		log:      log,
	}
}

func (h *Handler) Mount(g *gin.RouterGroup) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/logout", h.Logout)
	g.GET("/me", RequireAuth(h.tokens, h.sessions), h.Me)

	if h.opts.Google != nil {
		g.GET("/google/login", h.GoogleLogin)
		g.GET("/google/callback", h.GoogleCallback)
	}
}

type registerRequest struct {
	Name     string `json:"name" form:"name" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "error": err.Error()})
		return
	}
	email := NormalizeEmail(req.Email)
	if !ValidEmail(email) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "error": "invalid email address"})
		return
	}

	_, err := h.users.FindByEmail(c.Request.Context(), email)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}
	if !errors.Is(err, db.ErrNotFound) {
		_ = c.Error(err)
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		_ = c.Error(err)
		return
	}

	user := &models.User{
		Email:    email,
		Name:     strings.TrimSpace(req.Name),
		Password: string(hashed),
	}
	err = h.users.Create(c.Request.Context(), user)
	if errors.Is(err, db.ErrDuplicate) {
		c.JSON(http.StatusConflict, gin.H{"message": "Email already registered"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Info("user registered", zap.String("user_id", user.ID.Hex()))
	h.signIn(c, user, http.StatusCreated)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid input", "error": err.Error()})
		return
	}

	user, err := h.users.FindByEmail(c.Request.Context(), NormalizeEmail(req.Email))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}

	if user.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Use Google login for this account"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
		return
	}

	h.signIn(c, user, http.StatusOK)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.sessions.Destroy(c); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"message": "User not found"})
		return
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// signIn binds the user to the session and answers with a bearer token.
func (h *Handler) signIn(c *gin.Context, user *models.User, status int) {
	token, err := h.tokens.Generate(user.ID.Hex())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.sessions.SetUserID(c, user.ID.Hex()); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(status, gin.H{"token": token, "user": user})
}

// NormalizeEmail trims and lowercases an address. Addresses are validated and
// stored in this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether a normalized address is well formed.
func ValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}
