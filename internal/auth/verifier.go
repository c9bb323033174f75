package auth

import (
	"errors"

	"github.com/collabhub/collab-chat/internal/domain"
	"github.com/collabhub/collab-chat/pkg/jwt"
	"github.com/collabhub/collab-chat/pkg/log"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
)

// TokenValidator is satisfied by *jwt.Manager.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// TokenVerifier turns a bearer credential into an Identity. It does no I/O
// and keeps no state, so it is safe to call on every connection attempt.
type TokenVerifier struct {
	validator TokenValidator
}

func NewTokenVerifier(validator TokenValidator) *TokenVerifier {
	return &TokenVerifier{validator: validator}
}

// Verify returns ErrMissingCredential or ErrInvalidCredential on failure.
// Expired and malformed tokens both map to ErrInvalidCredential; the
// underlying reason is only logged.
func (v *TokenVerifier) Verify(credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, ErrMissingCredential
	}

	claims, err := v.validator.ValidateToken(credential)
	if err != nil {
		if errors.Is(err, jwt.ErrMissingToken) {
			return domain.Identity{}, ErrMissingCredential
		}
		l := log.L()
		l.Debug().Str("reason", err.Error()).Msg("credential rejected")
		return domain.Identity{}, ErrInvalidCredential
	}

	// Tokens minted at signup carry only userId and email.
	nickname := claims.Nickname
	if nickname == "" {
		nickname = claims.Email
	}
	return domain.Identity{
		UserID:   claims.UserID,
		Nickname: nickname,
	}, nil
}

// VerifyBearer adapts Verify to the gin auth middleware.
func (v *TokenVerifier) VerifyBearer(credential string) (string, string, error) {
	identity, err := v.Verify(credential)
	if err != nil {
		return "", "", err
	}
	return identity.UserID, identity.Nickname, nil
}

// Kind maps a verification error to the client-facing error kind.
func Kind(err error) domain.ErrorKind {
	if errors.Is(err, ErrMissingCredential) {
		return domain.KindMissingCredential
	}
	return domain.KindInvalidCredential
}
