package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HKCalvinYau/wati-automation/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorTokenValidator_RoundTrip(t *testing.T) {
	v := auth.NewEditorTokenValidator("secret")

	token, err := v.IssueToken("alice", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, auth.RoleAdmin, claims.Role)
}

func TestEditorTokenValidator_Rejects(t *testing.T) {
	v := auth.NewEditorTokenValidator("secret")

	expired, err := v.IssueToken("alice", auth.RoleEditor, -time.Minute)
	require.NoError(t, err)
	_, err = v.ValidateToken(expired)
	assert.Error(t, err)

	other, err := auth.NewEditorTokenValidator("other").IssueToken("alice", auth.RoleEditor, time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(other)
	assert.Error(t, err)

	viewer, err := v.IssueToken("bob", "viewer", time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(viewer)
	assert.ErrorIs(t, err, auth.ErrForbiddenRole)

	// 不接受 none 算法
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, auth.EditorClaims{Role: auth.RoleEditor})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.ValidateToken(raw)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer  abc "))
	assert.Empty(t, auth.BearerToken("Basic abc"))
	assert.Empty(t, auth.BearerToken(""))
}

func TestEditorAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := auth.NewEditorTokenValidator("secret")

	onError := func(c *gin.Context, status int, message, detail string) {
		c.JSON(status, gin.H{"success": false, "message": message})
	}
	router := gin.New()
	router.GET("/protected", auth.EditorAuthMiddleware(v, onError), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("user_id"))
	})
	router.GET("/open", auth.EditorAuthMiddleware(nil, onError), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := v.IssueToken("alice", auth.RoleEditor, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
