package llm

import (
	"fmt"
	"os"
	"sync"
)

// Credential is a resolved transport credential. BaseURL overrides the
// provider's default endpoint when non-empty (Azure, proxies, local models).
type Credential struct {
	APIKey  string
	BaseURL string
}

// CredentialResolver maps an opaque auth ref from ProviderMeta to a transport
// credential. Resolution happens once per BuildRequest; canonical data never
// carries secrets.
type CredentialResolver interface {
	Resolve(authRef string) (Credential, error)
}

// StaticResolver resolves auth refs from an in-memory map. Useful for tests
// and for programmatic embedding.
type StaticResolver struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

// NewStaticResolver creates a resolver over the given map.
func NewStaticResolver(creds map[string]Credential) *StaticResolver {
	if creds == nil {
		creds = make(map[string]Credential)
	}
	return &StaticResolver{creds: creds}
}

// Set adds or replaces a credential.
func (r *StaticResolver) Set(authRef string, cred Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[authRef] = cred
}

// Resolve implements CredentialResolver.
func (r *StaticResolver) Resolve(authRef string) (Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.creds[authRef]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %q", ErrCredentialNotFound, authRef)
	}
	return cred, nil
}

// EnvResolver resolves auth refs to environment variables: the auth ref names
// the variable holding the API key, and "<ref>_BASE_URL" optionally overrides
// the endpoint.
type EnvResolver struct{}

// Resolve implements CredentialResolver.
func (EnvResolver) Resolve(authRef string) (Credential, error) {
	key := os.Getenv(authRef)
	if key == "" {
		return Credential{}, fmt.Errorf("%w: environment variable %q is empty", ErrCredentialNotFound, authRef)
	}
	return Credential{APIKey: key, BaseURL: os.Getenv(authRef + "_BASE_URL")}, nil
}
