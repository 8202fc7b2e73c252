package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/proptrade-auth/internal/config"
	apperrors "github.com/spec-kit/proptrade-auth/pkg/util"
)

func testPasswordManager(hasher string) *PasswordManager {
	return NewPasswordManager(config.AuthConfig{
		PasswordHasher: hasher,
		BcryptCost:     bcrypt.MinCost,
		Argon2Memory:   8 * 1024,
		Argon2Time:     1,
		Argon2Threads:  1,
	})
}

func TestPasswordManager_RoundTrip(t *testing.T) {
	for _, hasher := range []string{config.HasherBcrypt, config.HasherArgon2id} {
		t.Run(hasher, func(t *testing.T) {
			pm := testPasswordManager(hasher)
			passwords := []string{"Str0ng!Pass", "An0ther#Secret", "ümlaut-Pässw0rd!"}

			for _, p := range passwords {
				hash, err := pm.Hash(p)
				require.NoError(t, err)
				assert.NotContains(t, hash, p)
				assert.True(t, pm.Verify(p, hash), "own password must verify")

				for _, other := range passwords {
					if other != p {
						assert.False(t, pm.Verify(other, hash), "different password must not verify")
					}
				}
			}
		})
	}
}

func TestPasswordManager_SaltsEveryHash(t *testing.T) {
	pm := testPasswordManager(config.HasherArgon2id)
	h1, err := pm.Hash("Str0ng!Pass")
	require.NoError(t, err)
	h2, err := pm.Hash("Str0ng!Pass")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
	assert.True(t, strings.HasPrefix(h1, argon2Prefix))
}

func TestPasswordManager_VerifiesEitherFormat(t *testing.T) {
	bcryptHash, err := testPasswordManager(config.HasherBcrypt).Hash("Str0ng!Pass")
	require.NoError(t, err)
	argonHash, err := testPasswordManager(config.HasherArgon2id).Hash("Str0ng!Pass")
	require.NoError(t, err)

	pm := testPasswordManager(config.HasherArgon2id)
	assert.True(t, pm.Verify("Str0ng!Pass", bcryptHash))
	assert.True(t, pm.Verify("Str0ng!Pass", argonHash))
}

func TestPasswordManager_MalformedHashFailsClosed(t *testing.T) {
	pm := testPasswordManager(config.HasherBcrypt)
	for _, stored := range []string{"", "plain", "$argon2id$v=19$broken", "$argon2id$v=19$m=1,t=1,p=1$!!$!!"} {
		assert.False(t, pm.Verify("Str0ng!Pass", stored), stored)
	}
}

func TestPasswordManager_VerifyDummy(t *testing.T) {
	pm := testPasswordManager(config.HasherBcrypt)
	pm.VerifyDummy("whatever")
	assert.NotEmpty(t, pm.dummyHash)
}

func TestValidatePasswordStrength(t *testing.T) {
	require.NoError(t, ValidatePasswordStrength("Str0ng!Pass"))

	cases := map[string]string{
		"short":      "S0!a",
		"no upper":   "str0ng!pass",
		"no lower":   "STR0NG!PASS",
		"no digit":   "Strong!Pass",
		"no special": "Str0ngPass",
		"too long":   "Str0ng!" + strings.Repeat("a", 80),
	}
	for name, pw := range cases {
		err := ValidatePasswordStrength(pw)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, apperrors.ErrValidation), name)
	}
}
