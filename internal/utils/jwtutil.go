package utils

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const shareIssuer = "rentflow"

var ErrInvalidShareToken = errors.New("invalid share token")

// ShareClaims grant read access to one invoice PDF.
type ShareClaims struct {
	InvoiceID int64 `json:"invoice_id"`
	jwt.RegisteredClaims
}

func GenerateShareToken(secret []byte, invoiceID int64, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("share secret is empty")
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := &ShareClaims{
		InvoiceID: invoiceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    shareIssuer,
			Subject:   strconv.FormatInt(invoiceID, 10),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(secret)
	return s, exp, err
}

func ParseShareToken(secret []byte, tokenStr string) (*ShareClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ShareClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShareToken, err)
	}

	if claims, ok := token.Claims.(*ShareClaims); ok && token.Valid && claims.Issuer == shareIssuer && claims.InvoiceID > 0 {
		return claims, nil
	}

	return nil, ErrInvalidShareToken
}
