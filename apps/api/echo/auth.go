package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/sauvini/onboarding/core"
)

const (
	tokenContextKey = "wizardToken"
	tokenAudience   = "registration"
)

// Claims represents the authorization claims of a wizard session, transmitted via a JWT.
// The subject is the session ID.
type Claims struct {
	jwt.StandardClaims
}

// Valid also checks the token was issued for a wizard session.
func (c *Claims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if !c.VerifyAudience(tokenAudience, true) || c.Subject == "" {
		return errors.New("token is not a registration token")
	}
	return nil
}

// Auth issues and checks the wizard session tokens.
type Auth struct {
	conf      middleware.JWTConfig
	issuer    string
	expiresIn time.Duration
}

func NewAuth(conf *core.Config) *Auth {
	return &Auth{
		conf: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    tokenContextKey,
			Claims:        new(Claims),
		},
		issuer:    conf.AppName,
		expiresIn: conf.Server.WizardTokenExpirationDelta,
	}
}

// Middleware rejects the requests without a valid wizard token.
func (a *Auth) Middleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.conf)
}

// GenerateToken generates a signed JWT token string for the session.
func (a *Auth) GenerateToken(sessionID string) (string, error) {
	now := time.Now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.issuer,
			Subject:   sessionID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(a.expiresIn).Unix(),
			IssuedAt:  now.Unix(),
		},
	}

	method := jwt.GetSigningMethod(a.conf.SigningMethod)
	token := jwt.NewWithClaims(method, claims)
	ss, err := token.SignedString(a.conf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(tokenContextKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

// getSessionID returns the session ID of the authenticated request.
func getSessionID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
