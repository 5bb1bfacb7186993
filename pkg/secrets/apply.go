package secrets

import (
	"context"
	"fmt"

	"github.com/Checker-Finance/nextgen-api/pkg/nextgen"
)

// Secret keys understood by ApplyCredentials.
const (
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeySiteID       = "site_id"
	KeyGrantType    = "grant_type"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeySessionID    = "session_id"
)

// ApplyCredentials loads secret name from p and overlays its values onto cfg.
// Keys absent or empty in the secret leave cfg unchanged.
func ApplyCredentials(ctx context.Context, p Provider, name string, cfg *nextgen.Config) error {
	values, err := p.GetSecret(ctx, name)
	if err != nil {
		return fmt.Errorf("load nextgen credentials: %w", err)
	}

	set := func(dst *string, key string) {
		if v := values[key]; v != "" {
			*dst = v
		}
	}
	set(&cfg.ClientID, KeyClientID)
	set(&cfg.ClientSecret, KeyClientSecret)
	set(&cfg.SiteID, KeySiteID)
	set(&cfg.Username, KeyUsername)
	set(&cfg.Password, KeyPassword)
	set(&cfg.SessionID, KeySessionID)
	if v := values[KeyGrantType]; v != "" {
		cfg.GrantType = nextgen.GrantType(v)
	}
	return nil
}
