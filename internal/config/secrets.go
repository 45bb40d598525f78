package config

import "os"

// SecretResolver looks up a secret by name, independent of how the YAML
// config expanded its own ${VAR} references. Agents/tools that need a
// credential at call time (rather than at config-load time) go through
// this seam instead of reading os.Getenv directly, so a project can swap
// in a vault-backed resolver without touching caller code.
type SecretResolver interface {
	Resolve(name string) (string, bool)
}

// EnvSecretResolver resolves secrets from the process environment,
// optionally under a name prefix (e.g. "OXY_SECRET_").
type EnvSecretResolver struct {
	Prefix string
}

func (r EnvSecretResolver) Resolve(name string) (string, bool) {
	return os.LookupEnv(r.Prefix + name)
}
