package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	qrIssuer   = "mts-gate"
	qrAudience = "mts-gates"
)

type QRClaims struct {
	TicketID int64 `json:"ticket_id"`
	UserID   int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// QRCodec signs the gate token printed as a ticket's QR code.
type QRCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewQRCodec(secret string, ttl time.Duration) (*QRCodec, error) {
	if secret == "" {
		return nil, ErrEmptyJWTSecret
	}
	return &QRCodec{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (q *QRCodec) Issue(ticketID, ownerID int64) (string, error) {
	now := q.now()
	claims := &QRClaims{
		TicketID: ticketID,
		UserID:   ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    qrIssuer,
			Audience:  []string{qrAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(q.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(q.secret)
}

func (q *QRCodec) Verify(tokenString string) (int64, int64, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&QRClaims{},
		hmacKey(string(q.secret)),
		jwt.WithIssuer(qrIssuer),
		jwt.WithAudience(qrAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(q.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, 0, ErrTokenExpired
		}
		return 0, 0, err
	}

	claims, ok := token.Claims.(*QRClaims)
	if !ok || !token.Valid || claims.TicketID == 0 {
		return 0, 0, ErrInvalidToken
	}

	return claims.TicketID, claims.UserID, nil
}
