package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	CookieName      = "sid"
	DefaultLifetime = 24 * time.Hour

	keyCreated = "created_at"
	keyUserID  = "user_id"

	signedPrefix = "s:"

	// dirtyKey marks a request whose session changed after its last commit.
	dirtyKey = "session.dirty"
)

type Config struct {
	Secret   string
	Lifetime time.Duration
	Secure   bool
}

// Manager attaches a server-side session to every request passing through
// Middleware. The cookie carries the session token followed by an HMAC of
// the token keyed with the configured secret.
type Manager struct {
	scs    *scs.SessionManager
	secret []byte
	log    *zap.Logger
}

func New(cfg Config, store scs.Store, log *zap.Logger) *Manager {
	sm := scs.New()
	sm.Store = store
	sm.Lifetime = cfg.Lifetime
	if sm.Lifetime <= 0 {
		sm.Lifetime = DefaultLifetime
	}
	sm.Cookie.Name = CookieName
	sm.Cookie.Path = "/"
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = cfg.Secure
	sm.Cookie.Persist = true

	return &Manager{
		scs:    sm,
		secret: []byte(cfg.Secret),
		log:    log,
	}
}

// Middleware loads the session named by the request cookie, or starts a new
// one. New sessions are saved and their cookie issued before the handlers run,
// whether or not the handlers use them. Changes made by handlers are saved
// once after they return.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Add("Vary", "Cookie")

		ctx, err := m.scs.Load(c.Request.Context(), m.token(c.Request))
		if err != nil {
			_ = c.Error(fmt.Errorf("load session: %w", err))
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(ctx)

		if !m.scs.Exists(ctx, keyCreated) {
			m.scs.Put(ctx, keyCreated, time.Now().Unix())
			if err := m.commit(c); err != nil {
				_ = c.Error(err)
				c.Abort()
				return
			}
		}

		c.Next()

		if c.GetBool(dirtyKey) && m.scs.Status(ctx) == scs.Modified {
			if _, _, err := m.scs.Commit(ctx); err != nil {
				m.log.Error("commit session", zap.Error(err))
			}
		}
	}
}

func (m *Manager) Put(c *gin.Context, key string, val any) {
	m.scs.Put(c.Request.Context(), key, val)
	c.Set(dirtyKey, true)
}

func (m *Manager) GetString(c *gin.Context, key string) string {
	return m.scs.GetString(c.Request.Context(), key)
}

func (m *Manager) PopString(c *gin.Context, key string) string {
	ctx := c.Request.Context()
	if !m.scs.Exists(ctx, key) {
		return ""
	}
	c.Set(dirtyKey, true)
	return m.scs.PopString(ctx, key)
}

func (m *Manager) UserID(c *gin.Context) string {
	return m.GetString(c, keyUserID)
}

// SetUserID records a sign-in. The token is renewed so a session id seen
// before authentication cannot be reused after it.
func (m *Manager) SetUserID(c *gin.Context, userID string) error {
	m.Put(c, keyUserID, userID)
	return m.Renew(c)
}

// Renew replaces the session token, keeping the data, and reissues the cookie.
func (m *Manager) Renew(c *gin.Context) error {
	if err := m.scs.RenewToken(c.Request.Context()); err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return m.commit(c)
}

// Destroy deletes the session and expires the cookie.
func (m *Manager) Destroy(c *gin.Context) error {
	if err := m.scs.Destroy(c.Request.Context()); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	c.Set(dirtyKey, false)
	return m.writeCookie(c.Writer, "", time.Time{})
}

func (m *Manager) commit(c *gin.Context) error {
	token, expiry, err := m.scs.Commit(c.Request.Context())
	if err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	c.Set(dirtyKey, false)
	return m.writeCookie(c.Writer, token, expiry)
}

func (m *Manager) writeCookie(w http.ResponseWriter, token string, expiry time.Time) error {
	opts := m.scs.Cookie
	cookie := &http.Cookie{
		Name:     opts.Name,
		Path:     opts.Path,
		Domain:   opts.Domain,
		Secure:   opts.Secure,
		HttpOnly: opts.HttpOnly,
		SameSite: opts.SameSite,
	}

	if token == "" {
		cookie.Expires = time.Unix(1, 0)
		cookie.MaxAge = -1
	} else {
		value, err := m.sign(token)
		if err != nil {
			return err
		}
		cookie.Value = value
		if opts.Persist {
			cookie.Expires = time.Unix(expiry.Unix()+1, 0)
			cookie.MaxAge = int(time.Until(expiry).Seconds() + 1)
		}
	}

	replaceCookie(w.Header(), cookie)
	if w.Header().Get("Cache-Control") == "" {
		w.Header().Set("Cache-Control", `no-cache="Set-Cookie"`)
	}
	return nil
}

// replaceCookie drops any Set-Cookie already queued for the same name, so a
// renewal during the request wins over the cookie issued when it started.
func replaceCookie(h http.Header, cookie *http.Cookie) {
	prefix := cookie.Name + "="
	var kept []string
	for _, v := range h.Values("Set-Cookie") {
		if !strings.HasPrefix(v, prefix) {
			kept = append(kept, v)
		}
	}
	h.Del("Set-Cookie")
	for _, v := range kept {
		h.Add("Set-Cookie", v)
	}
	h.Add("Set-Cookie", cookie.String())
}

func (m *Manager) token(r *http.Request) string {
	cookie, err := r.Cookie(m.scs.Cookie.Name)
	if err != nil {
		return ""
	}
	token, ok := m.unsign(cookie.Value)
	if !ok {
		return ""
	}
	return token
}

func (m *Manager) sign(token string) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(token, m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signedPrefix + token + "." + sig, nil
}

func (m *Manager) unsign(value string) (string, bool) {
	rest, ok := strings.CutPrefix(value, signedPrefix)
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, '.')
	if i <= 0 {
		return "", false
	}
	token, sig := rest[:i], rest[i+1:]
	if err := jwt.SigningMethodHS256.Verify(token, sig, m.secret); err != nil {
		return "", false
	}
	return token, true
}
