package config

import (
	"net/url"

	"gopkg.in/yaml.v3"
)

const masked = "******"

// YAML renders the effective settings with credentials masked. The output
// can be fed back to Load.
func (c *Config) YAML() ([]byte, error) {
	cp := *c
	cp.Database.Password = mask(cp.Database.Password)
	cp.Database.URL = maskURL(cp.Database.URL)
	cp.Redis.URL = maskURL(cp.Redis.URL)
	cp.LLM.APIKey = mask(cp.LLM.APIKey)
	cp.Minio.SecretKey = mask(cp.Minio.SecretKey)
	if len(c.Server.APIKeys) > 0 {
		cp.Server.APIKeys = make(map[string]string, len(c.Server.APIKeys))
		for name := range c.Server.APIKeys {
			cp.Server.APIKeys[name] = masked
		}
	}
	return yaml.Marshal(&cp)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return masked
}

// maskURL hides the password of a connection URL; unparsable values are
// masked whole.
func maskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return masked
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), masked)
	}
	return u.String()
}
