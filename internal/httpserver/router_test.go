package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/sweet_shop/internal/events"
	"github.com/Skotchmaster/sweet_shop/internal/metrics"
	"github.com/Skotchmaster/sweet_shop/internal/models"
	"github.com/Skotchmaster/sweet_shop/internal/repo"
	"github.com/Skotchmaster/sweet_shop/internal/service"
	"github.com/Skotchmaster/sweet_shop/internal/testutil"
	"github.com/Skotchmaster/sweet_shop/internal/transport"
	"github.com/Skotchmaster/sweet_shop/pkg/logging"
	"github.com/Skotchmaster/sweet_shop/pkg/tokens"
)

const (
	adminEmail    = "admin@test.com"
	adminPassword = "admin123"
)

type testEnv struct {
	e     *echo.Echo
	inv   *service.InventoryService
	admin string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "test")
	r := &repo.GormRepo{DB: db}
	iss := tokens.NewIssuer([]byte("router-secret"), time.Hour, models.AllRoles()...)

	authSvc := &service.AuthService{Repo: r, Tokens: iss, Events: events.Noop{}, Metrics: m}
	inv := &service.InventoryService{Repo: r, Events: events.Noop{}, Metrics: m}

	_, err := authSvc.SeedAdmin(t.Context(), adminEmail, adminPassword)
	require.NoError(t, err)

	e := echo.New()
	Register(e, &Deps{
		AuthHandler:      &AuthHTTP{Svc: authSvc},
		SweetsHandler:    &SweetsHTTP{Svc: inv},
		Tokens:           iss,
		DB:               db,
		Registry:         reg,
		MetricsNamespace: "test",
	})

	env := &testEnv{e: e, inv: inv}
	env.admin = env.login(t, adminEmail, adminPassword)
	return env
}

func (env *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/auth/login", transport.LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res transport.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.Token)
	return res.Token
}

func (env *testEnv) signup(t *testing.T) (email, password, token string) {
	t.Helper()
	email = uuid.NewString() + "@test.com"
	password = "123123"
	rec := env.do(http.MethodPost, "/api/auth/register",
		transport.RegisterRequest{Email: email, Password: password, Name: "test"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res transport.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return email, password, res.Token
}

func (env *testEnv) createSweet(t *testing.T, name string, price float64, qty int, category string) *models.Sweet {
	t.Helper()
	rec := env.do(http.MethodPost, "/api/sweets",
		transport.CreateSweetRequest{Name: name, Price: price, Quantity: qty, Category: category}, env.admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res transport.SweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Sweet)
	return res.Sweet
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m transport.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m.Message
}

func TestAuth_RegisterTwice(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	email, password, token := env.signup(t)
	assert.NotEmpty(t, token)

	rec := env.do(http.MethodPost, "/api/auth/register",
		transport.RegisterRequest{Email: email, Password: password, Name: "test"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username Already Exists!", message(t, rec))
}

func TestAuth_RegisterLogsSuccessOnce(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var logs bytes.Buffer
	body, err := json.Marshal(transport.RegisterRequest{Email: uuid.NewString() + "@test.com", Password: "123123"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(logging.IntoContext(req.Context(), logging.NewWithWriter(&logs, "info", "json")))
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var n int
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		if entry["msg"] == "register_success" {
			n++
			assert.NotNil(t, entry["user_id"])
		}
	}
	assert.Equal(t, 1, n, logs.String())
}

func TestAuth_RegisterValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing email", body: map[string]string{"password": "123123", "name": "test"}},
		{name: "empty email", body: map[string]string{"email": "", "password": "123123"}},
		{name: "malformed email", body: map[string]string{"email": "nope", "password": "123123"}},
		{name: "missing password", body: map[string]string{"email": "a@b.co"}},
		{name: "not json", body: "{"},
	}
	for _, tt := range tests {
		rec := env.do(http.MethodPost, "/api/auth/register", tt.body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
		assert.Equal(t, "Validation Failed", message(t, rec), tt.name)
	}
}

func TestAuth_Login(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	email, password, _ := env.signup(t)

	rec := env.do(http.MethodPost, "/api/auth/login", transport.LoginRequest{Email: email, Password: password}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res transport.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.NotEmpty(t, res.Token)
	require.NotNil(t, res.User)
	assert.Equal(t, email, res.User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.do(http.MethodPost, "/api/auth/login",
		transport.LoginRequest{Email: "doesntexistemail@test.com", Password: "123123"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found", message(t, rec))

	rec = env.do(http.MethodPost, "/api/auth/login", transport.LoginRequest{Email: email, Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", message(t, rec))
}

func TestSweets_RequireAuthentication(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	s := env.createSweet(t, "Ladoo", 10, 5, "Indian")
	id := fmt.Sprint(s.ID)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/sweets"},
		{http.MethodGet, "/api/sweets/search?name=Ladoo"},
		{http.MethodGet, "/api/sweets/" + id},
		{http.MethodPost, "/api/sweets"},
		{http.MethodPut, "/api/sweets/" + id},
		{http.MethodPatch, "/api/sweets/" + id},
		{http.MethodDelete, "/api/sweets/" + id},
		{http.MethodPost, "/api/sweets/" + id + "/purchase"},
		{http.MethodPost, "/api/sweets/" + id + "/restock"},
	}
	for _, tt := range tests {
		rec := env.do(tt.method, tt.path, map[string]int{"quantity": 1}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tt.method, tt.path)

		rec = env.do(tt.method, tt.path, map[string]int{"quantity": 1}, "not-a-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tt.method, tt.path)
	}

	got, err := env.inv.GetSweet(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity)
}

func TestSweets_AdminOnlyMutations(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, _, user := env.signup(t)
	s := env.createSweet(t, "Ladoo", 10, 5, "Indian")
	id := fmt.Sprint(s.ID)

	sweet := transport.CreateSweetRequest{Name: "Test Sweet", Price: 10.99, Quantity: 50, Category: "Test Category"}

	rec := env.do(http.MethodPost, "/api/sweets", sweet, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not authorized", message(t, rec))

	rec = env.do(http.MethodPut, "/api/sweets/"+id, map[string]any{"price": 1}, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/api/sweets/"+id, nil, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/sweets/"+id+"/restock", map[string]int{"quantity": 20}, user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodPost, "/api/sweets", sweet, env.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sweet created successfully", message(t, rec))

	rec = env.do(http.MethodPut, "/api/sweets/"+id, map[string]any{"price": 12.5}, env.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sweet updated successfully", message(t, rec))
	var upd transport.SweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &upd))
	assert.Equal(t, 12.5, upd.Sweet.Price)
	assert.Equal(t, "Ladoo", upd.Sweet.Name)

	rec = env.do(http.MethodPatch, "/api/sweets/"+id, map[string]any{"name": "Besan Ladoo"}, env.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sweet updated successfully", message(t, rec))

	rec = env.do(http.MethodDelete, "/api/sweets/"+id, nil, env.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Sweet deleted successfully", message(t, rec))

	rec = env.do(http.MethodDelete, "/api/sweets/"+id, nil, env.admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Sweet not found", message(t, rec))
}

func TestSweets_CreateValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing name", body: map[string]any{"price": 1, "quantity": 1, "category": "x"}},
		{name: "negative price", body: map[string]any{"name": "a", "price": -1, "quantity": 1, "category": "x"}},
		{name: "negative quantity", body: map[string]any{"name": "a", "price": 1, "quantity": -1, "category": "x"}},
		{name: "missing category", body: map[string]any{"name": "a", "price": 1, "quantity": 1}},
		{name: "quantity above limit", body: map[string]any{"name": "a", "price": 1, "quantity": math.MaxInt64, "category": "x"}},
		{name: "price is a string", body: `{"name":"a","price":"cheap","quantity":1,"category":"x"}`},
	}
	for _, tt := range tests {
		rec := env.do(http.MethodPost, "/api/sweets", tt.body, env.admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tt.name)
		assert.Equal(t, "Validation Failed", message(t, rec), tt.name)
	}

	rec := env.do(http.MethodPut, "/api/sweets/abc", map[string]any{"price": 1}, env.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", message(t, rec))

	rec = env.do(http.MethodPut, "/api/sweets/999", map[string]any{"price": 1}, env.admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPatch, "/api/sweets/999", map[string]any{}, env.admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweets_ListAndGet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, _, user := env.signup(t)

	rec := env.do(http.MethodGet, "/api/sweets", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	a := env.createSweet(t, "Ladoo", 10, 5, "Indian")
	env.createSweet(t, "Fudge", 4, 5, "Western")
	env.createSweet(t, "Barfi", 7, 5, "Indian")

	rec = env.do(http.MethodGet, "/api/sweets", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Sweet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 3)
	assert.Equal(t, "Ladoo", all[0].Name)
	assert.Equal(t, "3", rec.Header().Get(HeaderTotalCount))

	rec = env.do(http.MethodGet, "/api/sweets?page=2&size=2", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var page []models.Sweet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page, 1)
	assert.Equal(t, "Barfi", page[0].Name)

	rec = env.do(http.MethodGet, "/api/sweets?page=x", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, fmt.Sprintf("/api/sweets/%d", a.ID), nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Sweet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, a.ID, got.ID)

	rec = env.do(http.MethodGet, "/api/sweets/999", nil, user)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Sweet not found", message(t, rec))

	rec = env.do(http.MethodGet, "/api/sweets/0", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweets_Search(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, _, user := env.signup(t)

	rec := env.do(http.MethodGet, "/api/sweets/search?name=Ladoo", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	env.createSweet(t, "Besan Ladoo", 10, 5, "Indian")
	env.createSweet(t, "Motichoor ladoo", 14, 5, "Indian")
	env.createSweet(t, "Fudge", 4, 5, "Western")

	rec = env.do(http.MethodGet, "/api/sweets/search?name=Ladoo", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var got []models.Sweet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	for _, s := range got {
		assert.Contains(t, strings.ToLower(s.Name), "ladoo")
	}

	rec = env.do(http.MethodGet, "/api/sweets/search?category=indian&minPrice=12&maxPrice=20", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	got = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Motichoor ladoo", got[0].Name)

	rec = env.do(http.MethodGet, "/api/sweets/search?minPrice=abc", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", message(t, rec))

	rec = env.do(http.MethodGet, "/api/sweets/search?minPrice=20&maxPrice=10", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(http.MethodGet, "/api/sweets/search/text?q=ladoo", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	var text transport.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &text))
	assert.EqualValues(t, 2, text.Total)
	assert.Len(t, text.Sweets, 2)

	rec = env.do(http.MethodGet, "/api/sweets/search/text?q=ladoo&page=2&size=1", nil, user)
	require.Equal(t, http.StatusOK, rec.Code)
	text = transport.SearchResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &text))
	assert.EqualValues(t, 2, text.Total)
	require.Len(t, text.Sweets, 1)
	assert.Equal(t, "Motichoor ladoo", text.Sweets[0].Name)

	rec = env.do(http.MethodGet, "/api/sweets/search/text?q=", nil, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSweets_PurchaseAndRestock(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, _, user := env.signup(t)
	s := env.createSweet(t, "Ladoo", 10, 50, "Indian")
	base := fmt.Sprintf("/api/sweets/%d", s.ID)

	rec := env.do(http.MethodPost, base+"/purchase", map[string]int{"quantity": 2}, user)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Purchase successful", message(t, rec))
	var res transport.SweetResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 48, res.Sweet.Quantity)

	rec = env.do(http.MethodPost, base+"/purchase", map[string]int{"quantity": 2000}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Not enough stock available", message(t, rec))

	got, err := env.inv.GetSweet(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 48, got.Quantity)

	rec = env.do(http.MethodPost, base+"/purchase", map[string]int{"quantity": 0}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", message(t, rec))

	rec = env.do(http.MethodPost, "/api/sweets/999/purchase", map[string]int{"quantity": 1}, user)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(http.MethodPost, base+"/restock", map[string]int{"quantity": 20}, env.admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Restock successful", message(t, rec))

	got, err = env.inv.GetSweet(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 68, got.Quantity)

	for _, qty := range []int{math.MaxInt, transport.MaxStockDelta + 1} {
		rec = env.do(http.MethodPost, base+"/restock", map[string]int{"quantity": qty}, env.admin)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		assert.Equal(t, "Validation Failed", message(t, rec))
	}

	rec = env.do(http.MethodPost, base+"/purchase", map[string]int{"quantity": math.MaxInt}, user)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Validation Failed", message(t, rec))

	got, err = env.inv.GetSweet(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 68, got.Quantity)
}

// Without TEST_DATABASE_URL the handlers share one sqlite connection and the
// purchases are serialized; postgres gives concurrent writers.
func TestSweets_ConcurrentPurchases(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	_, _, user := env.signup(t)
	s := env.createSweet(t, "Ladoo", 10, 10, "Indian")
	path := fmt.Sprintf("/api/sweets/%d/purchase", s.ID)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(http.MethodPost, path, map[string]int{"quantity": 3}, user).Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, c)
		}
	}
	assert.Equal(t, 3, ok)

	got, err := env.inv.GetSweet(t.Context(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Quantity)
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_http_requests_total")
	assert.Contains(t, rec.Body.String(), "test_auth_attempts_total")
}
