package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration

	// AdminUser and AdminPasswordHash (bcrypt) guard /metrics and the
	// token exchange. An empty hash disables basic auth.
	AdminUser         string
	AdminPasswordHash string
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("BIBXML_JWT_SECRET")
	if secret == "" {
		// dev default (change for production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("BIBXML_JWT_ISSUER")
	if issuer == "" {
		issuer = "bibxml"
	}

	user := os.Getenv("BIBXML_ADMIN_USER")
	if user == "" {
		user = "admin"
	}

	return AuthConfig{
		JWTSecret:         secret,
		JWTIssuer:         issuer,
		JWTDuration:       parseHours(os.Getenv("BIBXML_JWT_TTL_HOURS"), 24*time.Hour),
		AdminUser:         user,
		AdminPasswordHash: os.Getenv("BIBXML_ADMIN_PASSWORD_HASH"),
	}
}

// parseHours falls back to def on empty or malformed input.
func parseHours(s string, def time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Hour
}

type GrpcConfig struct {
	Addr string
}

func LoadGrpcConfig() GrpcConfig {
	addr := os.Getenv("BIBXML_GRPC_ADDR")
	if addr == "" {
		addr = ":9090"
	}
	return GrpcConfig{Addr: addr}
}

type ServerConfig struct {
	HTTPAddr    string
	CacheDir    string
	CrossrefURL string
	LogLevel    string
}

func LoadServerConfig() ServerConfig {
	cfg := ServerConfig{
		HTTPAddr:    envOr("BIBXML_HTTP_ADDR", ":8000"),
		CrossrefURL: envOr("BIBXML_CROSSREF_URL", "https://api.crossref.org"),
		LogLevel:    envOr("BIBXML_LOG_LEVEL", "info"),
	}

	// An explicitly empty BIBXML_CACHE_DIR selects the in-memory cache.
	if dir, ok := os.LookupEnv("BIBXML_CACHE_DIR"); ok {
		cfg.CacheDir = dir
	} else {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			home = "."
		}
		cfg.CacheDir = home + "/.bibxml/cache"
	}
	return cfg
}

// AliasEntry lists the legacy directory names of one canonical dataset.
type AliasEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

type Xml2rfcConfig struct {
	PathPrefix        string       `yaml:"path_prefix"`
	InternalRequester string       `yaml:"internal_requester"`
	Aliases           []AliasEntry `yaml:"aliases"`
}

type fileConfig struct {
	Xml2rfc *Xml2rfcConfig `yaml:"xml2rfc"`
}

func DefaultXml2rfcConfig() Xml2rfcConfig {
	return Xml2rfcConfig{
		PathPrefix:        "public/rfc",
		InternalRequester: "xml2rfcResolver",
		Aliases: []AliasEntry{
			{Name: "rfcs", Aliases: []string{"bibxml"}},
			{Name: "misc", Aliases: []string{"bibxml2"}},
			{Name: "internet-drafts", Aliases: []string{"bibxml3", "bibxml-ids"}},
			{Name: "w3c", Aliases: []string{"bibxml4"}},
			{Name: "3gpp", Aliases: []string{"bibxml5"}},
			{Name: "ieee", Aliases: []string{"bibxml6"}},
			{Name: "doi", Aliases: []string{"bibxml7"}},
			{Name: "iana", Aliases: []string{"bibxml8"}},
			{Name: "rfcsubseries", Aliases: []string{"bibxml9"}},
			{Name: "nist", Aliases: []string{"bibxml-nist"}},
		},
	}
}

// LoadXml2rfcConfig layers defaults, the YAML file named by BIBXML_CONFIG
// and environment overrides, then validates the result.
func LoadXml2rfcConfig() (Xml2rfcConfig, error) {
	cfg := DefaultXml2rfcConfig()

	if path := os.Getenv("BIBXML_CONFIG"); path != "" {
		fromFile, err := LoadXml2rfcConfigFile(path)
		if err != nil {
			return cfg, err
		}
		cfg.merge(fromFile)
	}

	if v := os.Getenv("BIBXML_XML2RFC_PREFIX"); v != "" {
		cfg.PathPrefix = v
	}
	if v := os.Getenv("BIBXML_INTERNAL_REQUESTER"); v != "" {
		cfg.InternalRequester = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func LoadXml2rfcConfigFile(path string) (Xml2rfcConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Xml2rfcConfig{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return Xml2rfcConfig{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if fc.Xml2rfc == nil {
		return Xml2rfcConfig{}, nil
	}
	return *fc.Xml2rfc, nil
}

// merge overwrites fields that are set in other. A non-empty alias list
// replaces the default list entirely.
func (c *Xml2rfcConfig) merge(other Xml2rfcConfig) {
	if other.PathPrefix != "" {
		c.PathPrefix = other.PathPrefix
	}
	if other.InternalRequester != "" {
		c.InternalRequester = other.InternalRequester
	}
	if len(other.Aliases) > 0 {
		c.Aliases = other.Aliases
	}
}

func (c Xml2rfcConfig) Validate() error {
	if strings.Trim(c.PathPrefix, "/ ") == "" {
		return fmt.Errorf("xml2rfc.path_prefix is required")
	}

	canonical := make(map[string]bool, len(c.Aliases))
	for _, e := range c.Aliases {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("xml2rfc.aliases: entry without name")
		}
		if canonical[e.Name] {
			return fmt.Errorf("xml2rfc.aliases: %q listed twice", e.Name)
		}
		canonical[e.Name] = true
	}

	owner := make(map[string]string)
	for _, e := range c.Aliases {
		for _, a := range e.Aliases {
			if canonical[a] {
				return fmt.Errorf("xml2rfc.aliases: alias %q of %q is a canonical name", a, e.Name)
			}
			if prev, ok := owner[a]; ok && prev != e.Name {
				return fmt.Errorf("xml2rfc.aliases: alias %q registered for %q and %q", a, prev, e.Name)
			}
			owner[a] = e.Name
		}
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
