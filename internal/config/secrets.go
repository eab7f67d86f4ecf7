package config

import (
	"maps"
	"net/url"
	"slices"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Secrets are
// masked and a URL-form DSN keeps everything except its password.
func RedactedConfig(cfg *Config) Config {
	out := *cfg
	out.Postgres.DSN = redactDSN(cfg.Postgres.DSN)
	for _, s := range []*string{
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	out.Stream.CORSOrigins = slices.Clone(cfg.Stream.CORSOrigins)
	out.Node.Anvil.Args = slices.Clone(cfg.Node.Anvil.Args)
	out.Strategy.Params = maps.Clone(cfg.Strategy.Params)
	return out
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Scheme == "" || u.User == nil {
		return redacted
	}
	return u.Redacted()
}
