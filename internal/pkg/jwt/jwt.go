package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/s21platform/ticketchat-service/internal/model"
)

const tokenTTL = 30 * time.Minute

type Generator struct {
	secret []byte
	now    func() time.Time
}

func New(secret string) *Generator {
	return &Generator{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// GenerateConnectToken signs a realtime connection token for a display name.
func (g *Generator) GenerateConnectToken(user string) (string, int64, error) {
	now := g.now()
	expiresAt := now.Add(tokenTTL)

	claims := model.CentrifugoConnectClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := g.sign(claims)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign connect JWT token: %w", err)
	}

	return token, expiresAt.Unix(), nil
}

// GenerateSubscribeToken signs a token that lets user subscribe to the
// channel of one ticket.
func (g *Generator) GenerateSubscribeToken(user, ticketID string) (string, int64, error) {
	now := g.now()
	expiresAt := now.Add(tokenTTL)

	claims := model.CentrifugoSubscribeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Channel:  model.TicketChannel(ticketID),
		User:     user,
		TicketID: ticketID,
	}

	token, err := g.sign(claims)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign subscribe JWT token: %w", err)
	}

	return token, expiresAt.Unix(), nil
}

func (g *Generator) ValidateConnectToken(tokenString string) (*model.CentrifugoConnectClaims, error) {
	claims := &model.CentrifugoConnectClaims{}
	if err := g.parse(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse connect JWT token: %w", err)
	}
	return claims, nil
}

func (g *Generator) ValidateSubscribeToken(tokenString string) (*model.CentrifugoSubscribeClaims, error) {
	claims := &model.CentrifugoSubscribeClaims{}
	if err := g.parse(tokenString, claims); err != nil {
		return nil, fmt.Errorf("failed to parse subscribe JWT token: %w", err)
	}
	if claims.Channel != model.TicketChannel(claims.TicketID) {
		return nil, fmt.Errorf("subscribe token channel %q does not match ticket %q", claims.Channel, claims.TicketID)
	}
	return claims, nil
}

func (g *Generator) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

func (g *Generator) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(g.now))
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
