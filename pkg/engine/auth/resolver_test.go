package auth

import (
	"testing"

	"zagent/pkg/engine/api"
)

func testSpec() api.ProviderSpec {
	return api.ProviderSpec{ProviderID: "test-provider", APIKeyEnvVar: "TEST_PROVIDER_KEY"}
}

func TestResolvePrefersEnvVar(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "env-key")

	cred, err := Resolve(testSpec())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Source != SourceEnv || cred.Key != "env-key" {
		t.Errorf("expected env credential, got %+v", cred)
	}
}

func TestResolveFallsBackToOAuthFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	spec := testSpec()
	if err := WriteOAuthToken(spec.ProviderID, OAuthToken{Token: "oauth-token"}); err != nil {
		t.Fatalf("WriteOAuthToken: %v", err)
	}

	cred, err := Resolve(spec)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Source != SourceOAuthFile || cred.Key != "oauth-token" {
		t.Errorf("expected oauth-file credential, got %+v", cred)
	}
}

func TestResolveFallsBackToStoredFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	spec := testSpec()
	if err := WriteStoredKey(spec.ProviderID, "stored-key"); err != nil {
		t.Fatalf("WriteStoredKey: %v", err)
	}

	cred, err := Resolve(spec)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Source != SourceStoredFile || cred.Key != "stored-key" {
		t.Errorf("expected stored-file credential, got %+v", cred)
	}
}

func TestResolveUnauthenticatedWhenNothingConfigured(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	cred, err := Resolve(testSpec())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Source != SourceNone || cred.Key != "" {
		t.Errorf("expected unauthenticated result, got %+v", cred)
	}
}

func TestOAuthTokenTakesPrecedenceOverStoredFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TEST_PROVIDER_KEY", "")

	spec := testSpec()
	if err := WriteStoredKey(spec.ProviderID, "stored-key"); err != nil {
		t.Fatalf("WriteStoredKey: %v", err)
	}
	if err := WriteOAuthToken(spec.ProviderID, OAuthToken{Token: "oauth-token"}); err != nil {
		t.Fatalf("WriteOAuthToken: %v", err)
	}

	cred, err := Resolve(spec)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cred.Source != SourceOAuthFile {
		t.Errorf("expected oauth file to take precedence, got %+v", cred)
	}
}
