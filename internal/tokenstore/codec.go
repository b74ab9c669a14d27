package tokenstore

import (
	"encoding/json"
	"fmt"

	"github.com/florianilch/tokengate/internal/token"
)

// encode serializes a token pair to its storage representation.
func encode(tok *token.StoredToken) ([]byte, error) {
	if tok == nil {
		return nil, fmt.Errorf("cannot store nil token")
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("encoding token: %w", err)
	}
	return data, nil
}

// decode parses the storage representation back into a token pair.
func decode(data []byte) (*token.StoredToken, error) {
	var tok token.StoredToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decoding stored token: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("stored token has no access token")
	}
	return &tok, nil
}
