package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"

	"strangerchat/backend/internal/config"
	apperrors "strangerchat/backend/internal/errors"
	"strangerchat/backend/internal/models"
)

const (
	issuer         = "strangerchat-service"
	participantKey = "participant"
)

// participantClaims: sub is the participant id, kind says guest or account.
type participantClaims struct {
	Kind models.ParticipantKind `json:"kind"`
	jwt.RegisteredClaims
}

// Auth issues and checks participant tokens.
type Auth struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewAuth(cfg *config.Config) *Auth {
	return &Auth{Secret: []byte(cfg.JWT.Secret), TTL: cfg.JWT.TTL, Now: time.Now}
}

// generateJWT підписує токен для учасника
func (a *Auth) generateJWT(p models.Participant) (string, error) {
	now := a.Now()
	claims := participantClaims{
		Kind: p.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.Secret)
}

// Parse validates a token and returns the participant it was issued to.
func (a *Auth) Parse(tokenString string) (models.Participant, error) {
	var claims participantClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.Now),
	)
	if err != nil {
		return models.Participant{}, err
	}
	p := models.Participant{Kind: claims.Kind, ID: claims.Subject}
	if err := p.Validate(); err != nil {
		return models.Participant{}, err
	}
	return p, nil
}

// bearer дістає токен із заголовка Authorization або, для WebSocket, з ?token=
func bearer(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

func (a *Auth) authenticate(c *gin.Context) (models.Participant, bool) {
	token := bearer(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return models.Participant{}, false
	}
	p, err := a.Parse(token)
	if err != nil {
		msg := "Invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "Token expired"
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return models.Participant{}, false
	}
	return p, true
}

// RequireParticipant rejects requests without a valid token and stores the
// caller for the handlers.
func (a *Auth) RequireParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := a.authenticate(c)
		if !ok {
			return
		}
		c.Set(participantKey, p)
		c.Next()
	}
}

func currentParticipant(c *gin.Context) models.Participant {
	return c.MustGet(participantKey).(models.Participant)
}

// GetGuestToken створює гостьового учасника та повертає JWT
func (h *Handler) GetGuestToken(c *gin.Context) {
	p := models.Guest(uuid.New().String())

	token, err := h.Auth.generateJWT(p)
	if err != nil {
		h.respondError(c, apperrors.Wrap(apperrors.KindInternal, "failed to create token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "participant": p})
}
