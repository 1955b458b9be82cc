package token

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCredentialUnavailable — minting невозможен (нет ключа или подпись
// не удалась). Не фатально: сессия продолжается в degraded-режиме
// с локальным fallback id без credential-а.
var ErrCredentialUnavailable = errors.New("credential unavailable")

var ErrInvalidCredential = errors.New("invalid credential")

type Credential struct {
	ParticipantID string
	Token         string
	ExpiresAt     time.Time
}

// Claims — то, что уезжает в HS256-токен вместо проприетарного
// RTC-токена: канал как audience, participant id как subject.
type Claims struct {
	jwt.RegisteredClaims
}

// Minter выпускает credential-ы для входа в канал. Используется
// SigningMethodHS256.
type Minter struct {
	appID  string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewMinter(appID, secret string, ttl time.Duration) *Minter {
	if ttl <= 0 {
		ttl = time.Hour
	}
	m := &Minter{
		appID: appID,
		ttl:   ttl,
		now:   time.Now,
	}
	if secret != "" {
		m.secret = []byte(secret)
	}
	return m
}

// Mint выдает участнику свежий id и подписанный credential для канала.
// Без ключа возвращает degraded credential (пустой Token) вместе с
// ErrCredentialUnavailable — вызывающий решает, как об этом сообщить.
func (m *Minter) Mint(channel string) (Credential, error) {
	uid := fallbackID()
	if len(m.secret) == 0 {
		return Credential{ParticipantID: uid}, ErrCredentialUnavailable
	}

	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			Issuer:    m.appID,
			Audience:  jwt.ClaimStrings{channel},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Credential{ParticipantID: uid}, fmt.Errorf("%w: %w", ErrCredentialUnavailable, err)
	}

	return Credential{ParticipantID: uid, Token: signed, ExpiresAt: exp}, nil
}

// ParseAndValidate проверяет подпись, issuer и срок действия.
func (m *Minter) ParseAndValidate(tokenStr, channel string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidCredential
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.appID),
		jwt.WithAudience(channel),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// fallbackID повторяет внешнюю token authority: случайный числовой id
// в [0, 100000). Коллизии возможны — id и так не доверяют до announce.
func fallbackID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000)
	}
	return n.String()
}
