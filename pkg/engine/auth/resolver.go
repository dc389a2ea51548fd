// Package auth resolves per-provider credentials: environment variable,
// then a provider's OAuth-style token file, then a stored key=value file,
// in that order (§4.5).
package auth

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"zagent/pkg/engine/api"
)

// Credential is the result of resolving a provider's key, naming where it
// came from so callers (and logs) can explain an auth failure precisely.
type Credential struct {
	Key    string
	Source CredentialSource
}

type CredentialSource string

const (
	SourceEnv        CredentialSource = "env"
	SourceOAuthFile  CredentialSource = "oauth_file"
	SourceStoredFile CredentialSource = "stored_file"
	SourceNone       CredentialSource = "none"
)

// configDir returns the well-known per-provider config directory,
// $HOME/.sea/auth, creating it on first use. HOME is required (§6).
func configDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", fmt.Errorf("HOME is not set; cannot resolve config directory")
	}
	dir := filepath.Join(home, ".sea", "auth")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create auth config dir: %w", err)
	}
	return dir, nil
}

func oauthFilePath(dir, providerID string) string {
	return filepath.Join(dir, providerID+".oauth.json")
}

func storedFilePath(dir, providerID string) string {
	return filepath.Join(dir, providerID+".key")
}

// Resolve applies the §4.5 precedence for a single provider: env var, then
// OAuth file, then stored key file. Returns SourceNone with an empty key
// when nothing is configured — callers surface that as an unauthenticated
// state with guidance, never as a hard error.
func Resolve(spec api.ProviderSpec) (Credential, error) {
	if spec.APIKeyEnvVar != "" {
		if v := os.Getenv(spec.APIKeyEnvVar); v != "" {
			return Credential{Key: v, Source: SourceEnv}, nil
		}
	}

	dir, err := configDir()
	if err != nil {
		// No config directory is not fatal: env may still have resolved
		// above, and a caller with no HOME simply gets an unauthenticated
		// result rather than a crash.
		return Credential{Source: SourceNone}, nil
	}

	if tok, err := readOAuthToken(oauthFilePath(dir, spec.ProviderID)); err == nil && tok.Token != "" {
		return Credential{Key: tok.Token, Source: SourceOAuthFile}, nil
	}

	if key, err := readStoredKey(storedFilePath(dir, spec.ProviderID)); err == nil && key != "" {
		return Credential{Key: key, Source: SourceStoredFile}, nil
	}

	return Credential{Source: SourceNone}, nil
}

// OAuthToken is the persisted shape of a provider's OAuth-style credential.
type OAuthToken struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

func readOAuthToken(path string) (OAuthToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return OAuthToken{}, err
	}
	var tok OAuthToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return OAuthToken{}, err
	}
	return tok, nil
}

// WriteOAuthToken persists a provider's OAuth token atomically (temp file +
// rename) with restrictive permissions, never leaving a partially-written
// payload visible at the final path.
func WriteOAuthToken(providerID string, tok OAuthToken) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	path := oauthFilePath(dir, providerID)

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal oauth token: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp oauth file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp oauth file: %w", err)
	}
	return nil
}

// readStoredKey reads a flat key=value file and returns the "key" entry,
// the simplest possible persisted-credential format and the one the
// stored-file fallback uses.
func readStoredKey(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.TrimSpace(parts[0]) == "key" {
			return strings.Trim(strings.TrimSpace(parts[1]), `"'`), nil
		}
	}
	return "", scanner.Err()
}

// WriteStoredKey persists a raw key under the stored-file fallback path,
// using the same temp+rename discipline as WriteOAuthToken.
func WriteStoredKey(providerID, key string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	path := storedFilePath(dir, providerID)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte("key="+key+"\n"), 0600); err != nil {
		return fmt.Errorf("write temp key file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp key file: %w", err)
	}
	return nil
}
