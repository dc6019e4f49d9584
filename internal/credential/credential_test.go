package credential

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/tripwire/pkg/types"
)

var testKEK = []byte(strings.Repeat("k", 32))

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(testKEK)
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	s := newStore(t)
	sealed, err := s.Seal("strat-1", []byte("secret"))
	require.NoError(t, err)
	assert.NotContains(t, sealed, hex.EncodeToString([]byte("secret")))

	got, err := s.Open("strat-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), got)
}

func TestOpen_BoundToStrategy(t *testing.T) {
	s := newStore(t)
	sealed, err := s.Seal("strat-1", []byte("secret"))
	require.NoError(t, err)
	_, err = s.Open("strat-2", sealed)
	assert.Error(t, err)
}

func TestOpen_Malformed(t *testing.T) {
	s := newStore(t)
	_, err := s.Open("s", "zz")
	assert.Error(t, err)
	_, err = s.Open("s", "00")
	assert.ErrorContains(t, err, "too short")
}

func TestNewStore_KeyLength(t *testing.T) {
	_, err := NewStore([]byte("short"))
	assert.Error(t, err)
}

func TestGenerateAndResolve(t *testing.T) {
	s := newStore(t)
	sealed, owner, err := s.Generate("strat-1")
	require.NoError(t, err)

	cred, err := s.Resolve(context.Background(), types.Strategy{ID: "strat-1", EncryptedKey: sealed})
	require.NoError(t, err)
	key, err := crypto.ToECDSA(cred.Bytes())
	require.NoError(t, err)
	assert.Equal(t, owner, crypto.PubkeyToAddress(key.PublicKey))
}

func TestResolve_Missing(t *testing.T) {
	s := newStore(t)
	_, err := s.Resolve(context.Background(), types.Strategy{ID: "strat-1"})
	assert.ErrorIs(t, err, ErrMissing)

	_, err = s.Resolve(context.Background(), types.Strategy{ID: "strat-1", EncryptedKey: "abcd"})
	assert.ErrorIs(t, err, ErrMissing)
}

func TestCredentialRedacted(t *testing.T) {
	c := types.NewCredential([]byte("secret"))
	assert.Equal(t, "[redacted]", c.String())
	data, err := c.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"[redacted]"`, string(data))
	c.Zero()
	assert.Equal(t, make([]byte, 6), c.Bytes())
}

type mockSM struct {
	secret string
	err    error
	asked  string
}

func (m *mockSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.asked = aws.ToString(in.SecretId)
	if m.err != nil {
		return nil, m.err
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(m.secret)}, nil
}

func TestLoadKEK_SecretsManager(t *testing.T) {
	sm := &mockSM{secret: hex.EncodeToString(testKEK)}
	kek, err := LoadKEK(context.Background(), &types.CredentialConfig{Source: "secretsmanager", SecretID: "tripwire/kek"}, WithSecretsManagerClient(sm))
	require.NoError(t, err)
	assert.Equal(t, testKEK, kek)
	assert.Equal(t, "tripwire/kek", sm.asked)

	_, err = LoadKEK(context.Background(), &types.CredentialConfig{Source: "secretsmanager", SecretID: "x"}, WithSecretsManagerClient(&mockSM{err: errors.New("denied")}))
	assert.ErrorContains(t, err, "denied")
}

func TestLoadKEK_Env(t *testing.T) {
	env := map[string]string{"KEK": "0x" + hex.EncodeToString(testKEK)}
	kek, err := LoadKEK(context.Background(), &types.CredentialConfig{Source: "env", EnvVar: "KEK"}, WithGetenv(func(k string) string { return env[k] }))
	require.NoError(t, err)
	assert.Equal(t, testKEK, kek)

	_, err = LoadKEK(context.Background(), &types.CredentialConfig{Source: "env", EnvVar: "UNSET"}, WithGetenv(func(string) string { return "" }))
	assert.ErrorContains(t, err, "not set")
}
