package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestIssueAndVerifyToken(t *testing.T) {
	token, err := IssueToken(testSecret, "admin", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	subject, err := VerifyToken(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if subject != "admin" {
		t.Errorf("subject = %q, want admin", subject)
	}
}

func TestVerifyTokenRejects(t *testing.T) {
	valid, err := IssueToken(testSecret, "admin", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	expired, err := IssueToken(testSecret, "admin", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other-secret", valid},
		{"expired", testSecret, expired},
		{"garbage", testSecret, "not.a.token"},
		{"empty", testSecret, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyToken(tt.secret, tt.token); err == nil {
				t.Error("VerifyToken accepted invalid token")
			}
		})
	}
}

func TestJWTAuthMiddleware(t *testing.T) {
	var gotUser string
	handler := JWTAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "AUTH_MISSING_TOKEN") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bogus")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "AUTH_INVALID_TOKEN") {
			t.Errorf("body = %s", rec.Body.String())
		}
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "operator", time.Hour)
		if err != nil {
			t.Fatalf("IssueToken: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if gotUser != "operator" {
			t.Errorf("user in context = %q, want operator", gotUser)
		}
	})
}

func TestCredentialsMatch(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		pass     string
		want     bool
	}{
		{"both match", "admin", "secret", true},
		{"wrong user", "root", "secret", false},
		{"wrong pass", "admin", "guess", false},
		{"both wrong", "root", "guess", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CredentialsMatch(tt.user, tt.pass, "admin", "secret"); got != tt.want {
				t.Errorf("CredentialsMatch = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrustedRealIP(t *testing.T) {
	var gotAddr string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddr = r.RemoteAddr
	})

	t.Run("trusted proxy header honored", func(t *testing.T) {
		handler := TrustedRealIP([]string{"10.0.0.0/8"})(inner)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		req.Header.Set("X-Real-IP", "203.0.113.9")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if gotAddr != "203.0.113.9" {
			t.Errorf("RemoteAddr = %q, want 203.0.113.9", gotAddr)
		}
	})

	t.Run("untrusted peer header ignored", func(t *testing.T) {
		handler := TrustedRealIP([]string{"10.0.0.0/8"})(inner)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.7:4567"
		req.Header.Set("X-Real-IP", "203.0.113.9")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if gotAddr != "198.51.100.7:4567" {
			t.Errorf("RemoteAddr = %q, want untouched", gotAddr)
		}
	})

	t.Run("forwarded-for first hop", func(t *testing.T) {
		handler := TrustedRealIP([]string{"10.0.0.1"})(inner)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		if gotAddr != "203.0.113.9" {
			t.Errorf("RemoteAddr = %q, want first forwarded hop", gotAddr)
		}
	})
}
