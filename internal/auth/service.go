package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var ErrInvalidToken = errors.New("invalid token")

// Service guards the local API with a single shared token. The desktop
// shell receives it at launch and either sends it as a bearer header or
// exchanges it once for cookies.
type Service struct {
	token          string
	cookieTTL      time.Duration
	cookieName     string
	headerName     string
	csrfCookieName string
	csrfHeaderName string
}

// NewService uses token, or generates one when token is empty.
func NewService(token string, cookieTTL time.Duration) (*Service, error) {
	if token == "" {
		generated, err := generateToken()
		if err != nil {
			return nil, err
		}
		token = generated
	}
	if cookieTTL <= 0 {
		cookieTTL = 24 * time.Hour
	}
	return &Service{
		token:          token,
		cookieTTL:      cookieTTL,
		cookieName:     "auth_token",
		headerName:     "Authorization",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}, nil
}

// Token returns the API token.
func (s *Service) Token() string {
	return s.token
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() (string, error) {
	return generateToken()
}

// ValidateToken compares in constant time.
func (s *Service) ValidateToken(authToken string) error {
	if authToken == "" {
		return errors.New("token required")
	}
	if subtle.ConstantTimeCompare([]byte(authToken), []byte(s.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// IssueCookies sets the auth and CSRF cookies and returns the CSRF token
// the client must echo in the X-CSRF-Token header.
func (s *Service) IssueCookies(c *gin.Context) (string, error) {
	csrf, err := s.NewCSRFToken()
	if err != nil {
		return "", err
	}
	maxAge := int(s.cookieTTL.Seconds())
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cookieName, s.token, maxAge, "/", "", false, true)
	c.SetCookie(s.csrfCookieName, csrf, maxAge, "/", "", false, false)
	return csrf, nil
}

// ClearCookies removes both cookies.
func (s *Service) ClearCookies(c *gin.Context) {
	c.SetCookie(s.cookieName, "", -1, "/", "", false, true)
	c.SetCookie(s.csrfCookieName, "", -1, "/", "", false, false)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
