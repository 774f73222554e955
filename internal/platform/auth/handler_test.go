package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"simpellab-backend/internal/platform/apperr"
)

type stubAuthService struct {
	registered []string
}

func (s *stubAuthService) Login(_ context.Context, username, password string) (string, error) {
	if username == "admin" && password == "secret" {
		return "token-ok", nil
	}
	return "", apperr.Conflict("AUTH_FAILED", "authentication failed")
}

func (s *stubAuthService) Register(_ context.Context, username, name, _ string) (*Admin, error) {
	if username == "taken" {
		return nil, apperr.Conflict("USERNAME_TAKEN", "username already exists")
	}
	s.registered = append(s.registered, username)
	return &Admin{ID: 1, Username: username, Name: name, Status: StatusActive}, nil
}

func newTestRouter(svc AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, svc)
	return r
}

func TestRegisterRoute(t *testing.T) {
	svc := &stubAuthService{}
	r := newTestRouter(svc)

	body := `{"username":"newadmin","name":"New Admin","password":"secret"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body: %s)", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["username"] != "newadmin" {
		t.Errorf("username = %v, want newadmin", resp["username"])
	}
	if len(svc.registered) != 1 || svc.registered[0] != "newadmin" {
		t.Errorf("service saw registrations %v", svc.registered)
	}
}

func TestRegisterRouteUsernameTaken(t *testing.T) {
	r := newTestRouter(&stubAuthService{})

	body := `{"username":"taken","name":"Dup","password":"secret"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body: %s)", w.Code, w.Body.String())
	}
}

func TestLoginRouteBadCredentials(t *testing.T) {
	r := newTestRouter(&stubAuthService{})

	body := `{"username":"admin","password":"wrong"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (body: %s)", w.Code, w.Body.String())
	}
}
