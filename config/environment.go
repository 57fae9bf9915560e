package config

import (
	"os"
	"strings"
)

// Environment names the deployment selected through APP_ENV.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

const appEnvVar = "APP_ENV"

var envAliases = map[string]Environment{
	"dev":   EnvDevelopment,
	"stag":  EnvStaging,
	"stage": EnvStaging,
	"prod":  EnvProduction,
}

// CurrentEnvironment returns the normalised APP_ENV value. Unset means
// development; unknown names are returned lower-cased.
func CurrentEnvironment() Environment {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if v == "" {
		return EnvDevelopment
	}
	if env, ok := envAliases[v]; ok {
		return env
	}
	return Environment(v)
}

// RequiresCredentials reports whether the gateway must start with venue API
// credentials.
func (e Environment) RequiresCredentials() bool {
	return e == EnvProduction || e == EnvStaging
}

// envPath swaps DefaultPath for the per-environment file registered in
// envPaths. Explicit paths are left alone.
func envPath(path string, env Environment) string {
	if path == "" {
		path = DefaultPath
	}
	if p, ok := envPaths[env]; ok && path == DefaultPath {
		return p
	}
	return path
}
