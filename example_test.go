package goSession_test

import (
	"context"
	"errors"
	"fmt"

	goSession "github.com/MrEthical07/goSession"
)

func ExampleManager() {
	cfg := goSession.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	manager, err := goSession.New().WithConfig(cfg).Build()
	if err != nil {
		panic(err)
	}
	defer manager.Close()

	ctx := context.Background()
	pair, err := manager.GenerateTokenPair(ctx, goSession.Identity{UserID: "u1", Email: "u1@example.com"})
	if err != nil {
		panic(err)
	}

	claims, err := manager.VerifyToken(ctx, pair.AccessToken)
	fmt.Println(claims.UserID, claims.Role, err)

	next, err := manager.RefreshAccessToken(ctx, pair.RefreshToken)
	fmt.Println(next.SessionID == pair.SessionID, err)

	_ = manager.InvalidateSession(ctx, pair.SessionID)
	_, err = manager.VerifyToken(ctx, next.AccessToken)
	fmt.Println(errors.Is(err, goSession.ErrUnauthorized))

	// Output:
	// u1 user <nil>
	// true <nil>
	// true
}

func ExampleProvider() {
	builds := 0
	provider := goSession.NewProvider(func() (*goSession.Manager, error) {
		builds++
		cfg := goSession.DefaultConfig()
		cfg.JWT.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
		return goSession.New().WithConfig(cfg).Build()
	})

	first := provider.MustGet()
	second := provider.MustGet()
	defer first.Close()

	fmt.Println(first == second, builds)

	// Output:
	// true 1
}
