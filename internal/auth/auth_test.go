package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/crm-service/internal/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expiresAt, err := tm.GenerateToken("user-1", "sales_agent", false)
	require.NoError(t, err)
	assert.False(t, expiresAt.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sales_agent", claims.RoleName)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)
}

func TestOneTimePasswordIssuer(t *testing.T) {
	issuer := NewOneTimePasswordIssuer(4, bcrypt.MinCost)

	first, err := issuer.IssueOneTimePassword()
	require.NoError(t, err)
	assert.Len(t, first.Plaintext, 12)
	assert.NotEqual(t, first.Plaintext, first.Hash)
	assert.NoError(t, ComparePassword(first.Hash, first.Plaintext))

	second, err := issuer.IssueOneTimePassword()
	require.NoError(t, err)
	assert.NotEqual(t, first.Plaintext, second.Plaintext)
}

func TestRoleAccessFilter(t *testing.T) {
	filter := NewRoleAccessFilter()
	agent := &Principal{
		User: &domain.User{ID: "agent-1"},
		Role: &domain.Role{Permissions: []domain.Permission{domain.PermissionLeadsRead, domain.PermissionLeadsQualify}},
	}
	admin := &Principal{
		User: &domain.User{ID: "admin-1"},
		Role: &domain.Role{Privileged: true, Permissions: []domain.Permission{domain.PermissionAll}},
	}
	client := &Principal{
		User: &domain.User{ID: "client-1", IsClient: true},
		Role: &domain.Role{Permissions: []domain.Permission{domain.PermissionAll}},
	}

	decision := filter.Authorize(agent, ResourceLeads, ActionQualify)
	assert.True(t, decision.Allowed)
	require.NotNil(t, decision.Scope.OwnerID)
	assert.Equal(t, "agent-1", *decision.Scope.OwnerID)

	assert.False(t, filter.Authorize(agent, ResourceLeads, ActionDelete).Allowed)

	decision = filter.Authorize(admin, ResourceLeads, ActionDelete)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.Scope.Unrestricted())

	assert.False(t, filter.Authorize(client, ResourceLeads, ActionRead).Allowed)
	assert.False(t, filter.Authorize(nil, ResourceLeads, ActionRead).Allowed)
}

func TestPrincipalHelpers(t *testing.T) {
	var missing *Principal
	assert.Empty(t, missing.ID())
	assert.False(t, missing.Privileged())

	p := &Principal{User: &domain.User{ID: "u"}, Role: &domain.Role{Privileged: true}}
	assert.Equal(t, "u", p.ID())
	assert.True(t, p.Privileged())
}

func TestPasswordPolicyAndComparison(t *testing.T) {
	assert.ErrorIs(t, CheckPasswordPolicy("short"), ErrPasswordTooShort)
	assert.ErrorIs(t, CheckPasswordPolicy(strings.Repeat("x", 73)), ErrPasswordTooLong)
	assert.NoError(t, CheckPasswordPolicy("long-enough"))

	hash, err := HashPassword("long-enough", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "long-enough"))
	assert.ErrorIs(t, ComparePassword(hash, "wrong-guess"), ErrPasswordMismatch)
	assert.ErrorIs(t, ComparePassword("", "long-enough"), ErrPasswordMismatch)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	valid := Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, valid).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.ParseToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign := valid
	foreign.Issuer = "someone-else"
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, foreign).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)

	mismatched := valid
	mismatched.Subject = "user-2"
	signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, mismatched).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = tm.ParseToken(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
