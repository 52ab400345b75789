package user

import (
	"errors"
	"time"
)

// APIKeyPrefix is prepended to generated API key identifiers.
const APIKeyPrefix = "komodo_"

// APIKey is a stored key+secret pair linked to a user. Both the websocket
// login frame (`ApiKeys{key,secret}`) and the `/auth` HTTP
// surface authenticate by looking up Key, then comparing SecretHash.
type APIKey struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	SecretHash string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// CreateAPIKeyRequest is the input for creating a new API key.
type CreateAPIKeyRequest struct {
	Name      string `json:"name"`
	ExpiresIn int    `json:"expires_in,omitempty"` // seconds; 0 = no expiry
}

func (r *CreateAPIKeyRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// CreateAPIKeyResponse is returned after creating an API key. The Secret is
// only shown once, at creation time; only its hash is ever persisted.
type CreateAPIKeyResponse struct {
	APIKey APIKey `json:"api_key"`
	Secret string `json:"secret"`
}
