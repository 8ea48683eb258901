package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMint(t *testing.T) {
	i := &Issuer{
		APIKey:    "testkey",
		APISecret: "testsecret",
		Room:      "rogue-talk",
		TTL:       time.Hour,
	}

	s, err := i.Mint("alice")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}

	var claims Claims
	tok, err := jwt.ParseWithClaims(s, &claims, func(tok *jwt.Token) (any, error) {
		return []byte("testsecret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if !tok.Valid {
		t.Fatal("token not valid")
	}

	if claims.Issuer != "testkey" {
		t.Errorf("iss = %q, want testkey", claims.Issuer)
	}
	if claims.Subject != "alice" || claims.Name != "alice" {
		t.Errorf("identity = %q/%q, want alice", claims.Subject, claims.Name)
	}
	if claims.ID == "" {
		t.Error("jti empty")
	}
	v := claims.Video
	if v.Room != "rogue-talk" || !v.RoomJoin || !v.CanPublish || !v.CanSubscribe {
		t.Errorf("video grant = %+v", v)
	}
	ttl := claims.ExpiresAt.Sub(claims.NotBefore.Time)
	if ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}
}

func TestMintWrongSecretRejected(t *testing.T) {
	i := &Issuer{APIKey: "k", APISecret: "right", Room: "r"}
	s, err := i.Mint("bob")
	if err != nil {
		t.Fatalf("Mint error: %v", err)
	}
	if _, err := jwt.Parse(s, func(tok *jwt.Token) (any, error) {
		return []byte("wrong"), nil
	}, jwt.WithValidMethods([]string{"HS256"})); err == nil {
		t.Error("token verified with the wrong secret")
	}
}

func TestMintMissingCredentials(t *testing.T) {
	i := &Issuer{Room: "r"}
	if _, err := i.Mint("bob"); err == nil {
		t.Error("Mint without credentials did not fail")
	}
}
