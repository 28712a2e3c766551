package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// ErrBadCredentials is returned for any failed login, without saying which
// part was wrong.
var ErrBadCredentials = errors.New("invalid email or password")

// AdminAccount is the single clinic administrator configured for the service.
type AdminAccount struct {
	Email        string
	PasswordHash string
}

// Authenticator checks admin credentials and issues tokens.
type Authenticator struct {
	admin  AdminAccount
	jwt    JWTConfig
	logger zerolog.Logger
	now    func() time.Time
}

func NewAuthenticator(admin AdminAccount, cfg JWTConfig, logger zerolog.Logger) *Authenticator {
	return &Authenticator{admin: admin, jwt: cfg, logger: logger, now: time.Now}
}

// HashPassword returns a bcrypt hash suitable for ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// Login verifies email and password and returns a signed admin token.
func (a *Authenticator) Login(email, password string) (string, time.Time, error) {
	if a.admin.Email == "" || a.admin.PasswordHash == "" {
		return "", time.Time{}, ErrBadCredentials
	}
	emailOK := subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(strings.TrimSpace(email))),
		[]byte(strings.ToLower(a.admin.Email)),
	) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(a.admin.PasswordHash), []byte(password))
	if !emailOK || passErr != nil {
		return "", time.Time{}, ErrBadCredentials
	}
	return IssueToken(a.jwt, a.admin.Email, []string{RoleAdmin}, a.now())
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginHandler serves POST /auth/login.
func (a *Authenticator) LoginHandler(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	token, expires, err := a.Login(req.Email, req.Password)
	if err != nil {
		a.logger.Warn().Str("remote_ip", c.RealIP()).Msg("admin login failed")
		return echo.NewHTTPError(http.StatusUnauthorized, ErrBadCredentials.Error())
	}
	a.logger.Info().Str("remote_ip", c.RealIP()).Msg("admin login")
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expires})
}
