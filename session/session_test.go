package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2/memstore"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := New(cfg, memstore.New(), zaptest.NewLogger(t))
	r := gin.New()
	r.Use(m.Middleware())

	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.POST("/login", func(c *gin.Context) {
		if err := m.SetUserID(c, c.Query("id")); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, m.UserID(c))
	})
	r.POST("/logout", func(c *gin.Context) {
		if err := m.Destroy(c); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	return r
}

func do(r http.Handler, method, target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestNewSessionIssuesCookie(t *testing.T) {
	assert := assert.New(t)
	r := newTestRouter(t, Config{Secret: "secret"})

	rr := do(r, http.MethodGet, "/ping", nil)
	assert.Equal(http.StatusNoContent, rr.Code)

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	assert.Contains(cookie.Value, "s:")
	assert.True(cookie.HttpOnly)
	assert.False(cookie.Secure)
	assert.WithinDuration(time.Now().Add(24*time.Hour), cookie.Expires, 5*time.Second)
	assert.InDelta(86400, cookie.MaxAge, 5)
}

func TestSecureCookie(t *testing.T) {
	r := newTestRouter(t, Config{Secret: "secret", Secure: true})

	cookie := sessionCookie(do(r, http.MethodGet, "/ping", nil))
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestExistingSessionIsReused(t *testing.T) {
	r := newTestRouter(t, Config{Secret: "secret"})

	cookie := sessionCookie(do(r, http.MethodGet, "/ping", nil))
	require.NotNil(t, cookie)

	rr := do(r, http.MethodGet, "/ping", cookie)
	assert.Nil(t, sessionCookie(rr))
}

func TestTamperedCookieStartsNewSession(t *testing.T) {
	r := newTestRouter(t, Config{Secret: "secret"})

	cookie := sessionCookie(do(r, http.MethodGet, "/ping", nil))
	require.NotNil(t, cookie)

	forged := *cookie
	forged.Value = cookie.Value + "x"
	next := sessionCookie(do(r, http.MethodGet, "/ping", &forged))
	require.NotNil(t, next)
	assert.NotEqual(t, cookie.Value, next.Value)

	other := newTestRouter(t, Config{Secret: "other"})
	assert.NotNil(t, sessionCookie(do(other, http.MethodGet, "/ping", cookie)))
}

func TestSetUserIDRenewsToken(t *testing.T) {
	assert := assert.New(t)
	r := newTestRouter(t, Config{Secret: "secret"})

	anon := sessionCookie(do(r, http.MethodGet, "/ping", nil))
	require.NotNil(t, anon)

	rr := do(r, http.MethodPost, "/login?id=u1", anon)
	assert.Equal(http.StatusNoContent, rr.Code)
	assert.Len(rr.Result().Cookies(), 1)
	authed := sessionCookie(rr)
	require.NotNil(t, authed)
	assert.NotEqual(anon.Value, authed.Value)

	assert.Equal("u1", do(r, http.MethodGet, "/whoami", authed).Body.String())
	assert.Equal("", do(r, http.MethodGet, "/whoami", anon).Body.String())
}

func TestLoginOnFirstRequest(t *testing.T) {
	r := newTestRouter(t, Config{Secret: "secret"})

	rr := do(r, http.MethodPost, "/login?id=u2", nil)
	require.Len(t, rr.Result().Cookies(), 1)
	assert.Equal(t, "u2", do(r, http.MethodGet, "/whoami", sessionCookie(rr)).Body.String())
}

func TestDestroyExpiresCookie(t *testing.T) {
	r := newTestRouter(t, Config{Secret: "secret"})

	authed := sessionCookie(do(r, http.MethodPost, "/login?id=u1", nil))
	require.NotNil(t, authed)

	rr := do(r, http.MethodPost, "/logout", authed)
	cleared := sessionCookie(rr)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Empty(t, cleared.Value)

	assert.Equal(t, "", do(r, http.MethodGet, "/whoami", authed).Body.String())
}

type countingStore struct {
	*memstore.MemStore
	commits int
}

func (s *countingStore) Commit(token string, b []byte, expiry time.Time) error {
	s.commits++
	return s.MemStore.Commit(token, b, expiry)
}

func TestCommitsOncePerChange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := &countingStore{MemStore: memstore.New()}
	m := New(Config{Secret: "secret"}, store, zaptest.NewLogger(t))

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/note", func(c *gin.Context) {
		m.Put(c, "note", c.Query("v"))
		c.Status(http.StatusNoContent)
	})
	r.POST("/login", func(c *gin.Context) {
		if err := m.SetUserID(c, "u1"); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	r.GET("/pop", func(c *gin.Context) {
		c.String(http.StatusOK, m.PopString(c, "missing"))
	})

	tests := []struct {
		name       string
		method     string
		target     string
		withCookie bool
		commits    int
	}{
		{"new session untouched", http.MethodGet, "/ping", false, 1},
		{"new session then written", http.MethodGet, "/note?v=a", false, 2},
		{"new session then renewed", http.MethodPost, "/login", false, 2},
		{"existing session untouched", http.MethodGet, "/ping", true, 0},
		{"existing session pop of missing key", http.MethodGet, "/pop", true, 0},
		{"existing session written", http.MethodGet, "/note?v=b", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cookie *http.Cookie
			if tt.withCookie {
				cookie = sessionCookie(do(r, http.MethodGet, "/ping", nil))
				require.NotNil(t, cookie)
			}
			store.commits = 0

			rr := do(r, tt.method, tt.target, cookie)
			require.Less(t, rr.Code, 300)
			assert.Equal(t, tt.commits, store.commits)
		})
	}
}
