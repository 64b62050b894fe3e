package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubFetcher struct {
	values map[string]string
	calls  int
}

func (s *stubFetcher) GetSecret(_ context.Context, name string, _ string, _ *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error) {
	s.calls++
	v, ok := s.values[name]
	if !ok {
		return azsecrets.GetSecretResponse{}, errors.New("SecretNotFound")
	}
	var resp azsecrets.GetSecretResponse
	resp.Value = &v
	return resp, nil
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceAuto, ""))
	assert.Equal(t, SourceVault, ResolveSource(SourceAuto, "production"))
	assert.Equal(t, SourceVault, ResolveSource(SourceVault, "development"))
	assert.Equal(t, SourceEnvironment, ResolveSource(SourceEnvironment, "production"))
}

func TestNewProvider_VaultRequiresName(t *testing.T) {
	_, err := NewProvider(&ProviderConfig{Source: SourceVault}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault name required")
}

func TestNewProvider_UnknownSource(t *testing.T) {
	_, err := NewProvider(&ProviderConfig{Source: "ssm"}, zap.NewNop())
	require.Error(t, err)
}

func TestProvider_Environment(t *testing.T) {
	env := map[string]string{"SF_PASSWORD": "from-env"}
	p := &Provider{source: SourceEnvironment, logger: zap.NewNop(), getenv: func(k string) string { return env[k] }}

	v, err := p.GetSecretOrEnv(context.Background(), "SF-PASSWORD", "SF_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	_, err = p.GetSecretOrEnv(context.Background(), "SF-USERNAME", "SF_USERNAME")
	assert.Error(t, err)
}

func TestProvider_VaultWithEnvOverride(t *testing.T) {
	fetcher := &stubFetcher{values: map[string]string{"SF-PASSWORD": "from-vault", "SF-USERNAME": "vault-user"}}
	env := map[string]string{"SF_USERNAME": "env-user"}
	p := &Provider{
		source: SourceVault,
		vault:  newVaultClient(fetcher, &VaultConfig{VaultName: "kv"}, zap.NewNop()),
		logger: zap.NewNop(),
		getenv: func(k string) string { return env[k] },
	}

	v, err := p.GetSecretOrEnv(context.Background(), "SF-PASSWORD", "SF_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "from-vault", v)

	v, err = p.GetSecretOrEnv(context.Background(), "SF-USERNAME", "SF_USERNAME")
	require.NoError(t, err)
	assert.Equal(t, "env-user", v)
	assert.Equal(t, 1, fetcher.calls)
}

func TestVaultClient_Cache(t *testing.T) {
	fetcher := &stubFetcher{values: map[string]string{"WAREHOUSE-URL": "dw:1433/LOP"}}
	vc := newVaultClient(fetcher, &VaultConfig{VaultName: "kv", CacheEnabled: true, CacheTTL: time.Minute}, zap.NewNop())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	vc.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		v, err := vc.GetSecret(context.Background(), "WAREHOUSE-URL")
		require.NoError(t, err)
		assert.Equal(t, "dw:1433/LOP", v)
	}
	assert.Equal(t, 1, fetcher.calls)

	now = now.Add(2 * time.Minute)
	_, err := vc.GetSecret(context.Background(), "WAREHOUSE-URL")
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)

	vc.ClearCache()
	_, err = vc.GetSecret(context.Background(), "WAREHOUSE-URL")
	require.NoError(t, err)
	assert.Equal(t, 3, fetcher.calls)
}

func TestVaultClient_MissingSecret(t *testing.T) {
	vc := newVaultClient(&stubFetcher{}, &VaultConfig{VaultName: "kv", CacheEnabled: true}, zap.NewNop())

	_, err := vc.GetSecret(context.Background(), "SF-PASSWORD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SF-PASSWORD")
}
