// Package token mints SFU join tokens. The server never proxies media;
// it hands the client a short-lived room-scoped JWT and trusts the SFU
// for delivery.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is used when an Issuer has no TTL set.
const DefaultTTL = 6 * time.Hour

// VideoGrant is the room grant carried in the token's video claim.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

// Claims is the full token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// Issuer mints join tokens for one room with one API key pair.
type Issuer struct {
	APIKey    string
	APISecret string
	Room      string
	TTL       time.Duration
}

// Mint creates a signed join token with identity and display name set to
// the player's name, and publish and subscribe grants on the issuer's
// room.
func (i *Issuer) Mint(playerName string) (string, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return "", errors.New("token: missing api key or secret")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.APIKey,
			Subject:   playerName,
			ID:        uuid.NewString(),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: playerName,
		Video: VideoGrant{
			Room:         i.Room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
	})
	s, err := tok.SignedString([]byte(i.APISecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}
