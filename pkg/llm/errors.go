package llm

import "errors"

var (
	// ErrUnsupportedContent indicates a canonical part type has no mapping
	// for the target provider (e.g. a part the provider's API cannot
	// express). Raised synchronously from BuildRequest.
	ErrUnsupportedContent = errors.New("unsupported content for provider")

	// ErrTranslationFailure indicates a provider payload could not be mapped
	// into canonical form.
	ErrTranslationFailure = errors.New("translation failure")

	// ErrUnknownProvider indicates no adapter is registered for a provider.
	ErrUnknownProvider = errors.New("no adapter registered for provider")

	// ErrCredentialNotFound indicates an auth ref could not be resolved.
	ErrCredentialNotFound = errors.New("credential not found")
)
