package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/internal/password"
)

var errInvalidCredentials = errors.New("invalid credentials")

// IdentityVerifier authenticates login credentials. goSession only ever sees
// the resulting Identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, email, password string) (goSession.Identity, error)
}

type demoUser struct {
	Identity goSession.Identity
	Password string
}

type storedUser struct {
	identity goSession.Identity
	hash     string
}

// staticVerifier checks credentials against a fixed user list. It stands in
// for a real user directory; plaintext passwords are hashed at startup and
// dropped.
type staticVerifier struct {
	hasher *password.Hasher
	users  map[string]storedUser
	// decoy is verified for unknown emails so both paths cost one argon2 run.
	decoy string
}

func newStaticVerifier(params password.Params, users []demoUser) (*staticVerifier, error) {
	hasher, err := password.NewHasher(params)
	if err != nil {
		return nil, err
	}
	decoy, err := hasher.Hash("decoy")
	if err != nil {
		return nil, err
	}
	v := &staticVerifier{hasher: hasher, users: make(map[string]storedUser, len(users)), decoy: decoy}
	for _, u := range users {
		hash, err := hasher.Hash(u.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", u.Identity.UserID, err)
		}
		v.users[strings.ToLower(u.Identity.Email)] = storedUser{identity: u.Identity, hash: hash}
	}
	return v, nil
}

func (v *staticVerifier) Verify(_ context.Context, email, pw string) (goSession.Identity, error) {
	u, known := v.users[strings.ToLower(strings.TrimSpace(email))]
	hash := u.hash
	if !known {
		hash = v.decoy
	}
	ok, err := v.hasher.Verify(pw, hash)
	if err != nil {
		return goSession.Identity{}, err
	}
	if !known || !ok {
		return goSession.Identity{}, errInvalidCredentials
	}
	return u.identity, nil
}
