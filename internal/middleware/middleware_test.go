package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/service"
	"ncert-tutor-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	students map[uint]*model.Student
}

func (f *fakeProfiles) Setup(context.Context, uint, service.SetupRequest) (*model.Student, *service.TokenPair, bool, error) {
	return nil, nil, false, service.ErrUnauthorized
}

func (f *fakeProfiles) Get(_ context.Context, id uint) (*model.Student, error) {
	if st, ok := f.students[id]; ok {
		return st, nil
	}
	return nil, service.ErrProfileNotFound
}

func (f *fakeProfiles) Login(context.Context, string, string) (*model.Student, *service.TokenPair, error) {
	return nil, nil, service.ErrUnauthorized
}

func (f *fakeProfiles) RefreshToken(context.Context, string) (*service.TokenPair, error) {
	return nil, service.ErrUnauthorized
}

func newEngine(jwtManager *token.JWTManager, profiles service.ProfileService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/student", AuthMiddleware(jwtManager, profiles), func(c *gin.Context) {
		st, ok := CurrentStudent(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, st.Handle)
	})
	r.GET("/admin", AdminAuthMiddleware(jwtManager), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/optional", OptionalAuth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"caller": CallerID(c)})
	})
	return r
}

func get(r *gin.Engine, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1, 1)
	profiles := &fakeProfiles{students: map[uint]*model.Student{7: {ID: 7, Handle: "asha"}}}
	r := newEngine(jwtManager, profiles)

	studentToken, err := jwtManager.GenerateToken(7, "asha", token.RoleStudent)
	require.NoError(t, err)
	ghostToken, err := jwtManager.GenerateToken(8, "ghost", token.RoleStudent)
	require.NoError(t, err)
	adminToken, err := jwtManager.GenerateToken(0, "admin", token.RoleAdmin)
	require.NoError(t, err)
	refreshToken, err := jwtManager.GenerateRefreshToken(7, "asha", token.RoleStudent)
	require.NoError(t, err)

	w := get(r, "/student", studentToken)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "asha", w.Body.String())

	for name, tok := range map[string]string{
		"missing":         "",
		"deleted student": ghostToken,
		"admin role":      adminToken,
		"refresh token":   refreshToken,
	} {
		t.Run(name, func(t *testing.T) {
			w := get(r, "/student", tok)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"error":"Unauthorized"`)
		})
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1, 1)
	r := newEngine(jwtManager, &fakeProfiles{})

	adminToken, err := jwtManager.GenerateToken(0, "admin", token.RoleAdmin)
	require.NoError(t, err)
	studentToken, err := jwtManager.GenerateToken(7, "asha", token.RoleStudent)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "/admin", adminToken).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", studentToken).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/admin", "").Code)
}

func TestOptionalAuth(t *testing.T) {
	jwtManager := token.NewJWTManager("secret", 1, 1)
	r := newEngine(jwtManager, &fakeProfiles{})

	studentToken, err := jwtManager.GenerateToken(7, "asha", token.RoleStudent)
	require.NoError(t, err)

	assert.JSONEq(t, `{"caller":7}`, get(r, "/optional", studentToken).Body.String())
	assert.JSONEq(t, `{"caller":0}`, get(r, "/optional", "").Body.String())
	assert.JSONEq(t, `{"caller":0}`, get(r, "/optional", "garbage").Body.String())
}

func TestElideRedactsSecrets(t *testing.T) {
	body := `{"handle":"asha","pin":"1234","data":{"accessToken":"abc.def","refreshToken" : "xyz"}}`
	out := elide([]byte(body))

	assert.NotContains(t, out, "1234")
	assert.NotContains(t, out, "abc.def")
	assert.NotContains(t, out, "xyz")
	assert.Contains(t, out, `"handle":"asha"`)
	assert.Contains(t, out, `"pin":"***"`)
}

func TestElideTruncates(t *testing.T) {
	out := elide([]byte(strings.Repeat("a", maxLoggedBody+100)))
	assert.True(t, strings.HasSuffix(out, "...(truncated)"))
	assert.Len(t, out, maxLoggedBody+len("...(truncated)"))
}

func TestRequestLoggerKeepsBodyReadable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger())
	r.POST("/echo", func(c *gin.Context) {
		var req map[string]string
		require.NoError(t, c.ShouldBindJSON(&req))
		c.JSON(http.StatusOK, req)
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"query":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"query":"hi"}`, w.Body.String())
}
