package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_IsValid(t *testing.T) {
	hash, err := HashKey("s3cret")
	assert.NoError(t, err)

	auth := NewAPIKeyAuth("X-API-Key", []string{hash})

	assert.True(t, auth.IsValid("s3cret"))
	assert.False(t, auth.IsValid("wrong"))
	assert.False(t, auth.IsValid(""))
}

func TestAPIKeyAuth_SkipsMalformedHashes(t *testing.T) {
	hash, err := HashKey("s3cret")
	assert.NoError(t, err)

	// Мусор в конфиге не должен ломать валидные записи.
	auth := NewAPIKeyAuth("X-API-Key", []string{"not-a-bcrypt-hash", "", "  ", hash})

	assert.True(t, auth.IsValid("s3cret"))
	assert.False(t, auth.IsValid("not-a-bcrypt-hash"))
}

func TestAPIKeyAuth_Middleware(t *testing.T) {
	hash, err := HashKey("s3cret")
	assert.NoError(t, err)

	auth := NewAPIKeyAuth("X-API-Key", []string{hash})
	protected := auth.Middleware(okHandler())

	// Без ключа.
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_api_key")

	// Неверный ключ.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_api_key")

	// Верный ключ в заголовке.
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-API-Key", "s3cret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Bearer-схема.
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyAuth_AddKeyHash(t *testing.T) {
	auth := NewAPIKeyAuth("X-API-Key", nil)
	assert.False(t, auth.IsValid("later"))

	hash, err := HashKey("later")
	assert.NoError(t, err)
	auth.AddKeyHash(hash)

	assert.True(t, auth.IsValid("later"))
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := SecurityHeadersMiddleware(okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestRequestSizeLimitMiddleware(t *testing.T) {
	h := RequestSizeLimitMiddleware(16)(okHandler())

	small := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, small)
	assert.Equal(t, http.StatusOK, rec.Code)

	big := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) MiddlewareFunc {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainHandler(okHandler(), tag("outer"), tag("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}
