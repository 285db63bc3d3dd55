// Package config loads a YAML file into a middleware.Config, resolving the
// authn.type/authz.type tag strings to concrete scheme/backend constructors
// the way the teacher's registry config resolves a source's type tag to a
// concrete builder (cmd/thv-operator/pkg/registryapi/config/config.go
// buildRegistryConfig's sourceCount switch).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/authguard/authguard/pkg/authn"
	"github.com/authguard/authguard/pkg/authn/basic"
	"github.com/authguard/authguard/pkg/authn/bearer"
	"github.com/authguard/authguard/pkg/authn/digest"
	"github.com/authguard/authguard/pkg/authn/none"
	"github.com/authguard/authguard/pkg/authn/oauth2"
	"github.com/authguard/authguard/pkg/authz"
	"github.com/authguard/authguard/pkg/authz/file"
	"github.com/authguard/authguard/pkg/authz/jwtauthz"
	"github.com/authguard/authguard/pkg/authz/simple"
	"github.com/authguard/authguard/pkg/authz/sqlite"
	"github.com/authguard/authguard/pkg/authz/unix"
	"github.com/authguard/authguard/pkg/middleware"
)

// Spec is the root YAML document shape.
type Spec struct {
	Authn AuthnSpec `yaml:"authn"`
	Authz AuthzSpec `yaml:"authz"`

	TokenEnabled  bool   `yaml:"tokenEnabled,omitempty"`
	HeaderEnabled bool   `yaml:"headerEnabled,omitempty"`
	CookieEnabled bool   `yaml:"cookieEnabled,omitempty"`
	HomeEnabled   bool   `yaml:"homeEnabled,omitempty"`
	UnixEnabled   bool   `yaml:"unixEnabled,omitempty"`
	Protect       string `yaml:"protect,omitempty"`
	Unprotect     string `yaml:"unprotect,omitempty"`
	Redirect      string `yaml:"redirect,omitempty"`
	ExpireSeconds int    `yaml:"expireSeconds,omitempty"`
	AnonymousUser string `yaml:"anonymousUser,omitempty"`

	AllowRedirectHEADSubstitution bool `yaml:"allowRedirectHeadSubstitution,omitempty"`
	EnableLogoutHeader            bool `yaml:"enableLogoutHeader,omitempty"`
	AllowUnixImpersonation        bool `yaml:"allowUnixImpersonation,omitempty"`
}

// AuthnSpec selects and configures one authn.Scheme.
type AuthnSpec struct {
	Type string `yaml:"type"`

	Realm string `yaml:"realm,omitempty"`
	User  string `yaml:"user,omitempty"` // none scheme's fixed identity

	// Digest
	Algorithm string `yaml:"algorithm,omitempty"`

	// Bearer
	Issuer      string `yaml:"issuer,omitempty"`
	Audience    string `yaml:"audience,omitempty"`
	JWKSURL     string `yaml:"jwksUrl,omitempty"`
	ResourceURL string `yaml:"resourceUrl,omitempty"`

	// OAuth2
	ClientID     string   `yaml:"clientId,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty"`
	RedirectURL  string   `yaml:"redirectUrl,omitempty"`
	AuthURL      string   `yaml:"authUrl,omitempty"`
	TokenURL     string   `yaml:"tokenUrl,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	UsePKCE      bool     `yaml:"usePkce,omitempty"`
	CallbackPath string   `yaml:"callbackPath,omitempty"`
}

// AuthzSpec selects and configures one authz.Backend.
type AuthzSpec struct {
	Type string `yaml:"type"`

	// File / SQLite
	Path string `yaml:"path,omitempty"`

	// Simple
	Accounts map[string]SimpleAccount `yaml:"accounts,omitempty"`

	// JWT wrapping
	Inner  *AuthzSpec `yaml:"inner,omitempty"`
	Secret string     `yaml:"secret,omitempty"`
}

// SimpleAccount mirrors simple.Account for YAML decoding.
type SimpleAccount struct {
	Passwd string `yaml:"passwd"`
	Group  string `yaml:"group,omitempty"`
	Home   string `yaml:"home,omitempty"`
}

// Load reads and parses path, then builds a middleware.Config from it.
func Load(path string) (*middleware.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var spec Spec
	if err := yaml.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Build(&spec)
}

// Build resolves a Spec into a middleware.Config with live backend/scheme
// instances. Exported separately from Load so callers that already have a
// decoded Spec (e.g. from a ConfigMap) skip the file round trip.
func Build(spec *Spec) (*middleware.Config, error) {
	backend, err := buildBackend(&spec.Authz)
	if err != nil {
		return nil, fmt.Errorf("config: authz: %w", err)
	}

	scheme, err := buildScheme(&spec.Authn, backend)
	if err != nil {
		return nil, fmt.Errorf("config: authn: %w", err)
	}

	cfg := &middleware.Config{
		Backend:                       backend,
		Scheme:                        scheme,
		TokenEnabled:                  spec.TokenEnabled,
		HeaderEnabled:                 spec.HeaderEnabled,
		CookieEnabled:                 spec.CookieEnabled,
		HomeEnabled:                   spec.HomeEnabled,
		UnixEnabled:                   spec.UnixEnabled,
		Protect:                       spec.Protect,
		Unprotect:                     spec.Unprotect,
		Redirect:                      spec.Redirect,
		Expire:                        time.Duration(spec.ExpireSeconds) * time.Second,
		AnonymousUser:                 spec.AnonymousUser,
		AllowRedirectHEADSubstitution: spec.AllowRedirectHEADSubstitution,
		EnableLogoutHeader:            spec.EnableLogoutHeader,
		AllowUnixImpersonation:        spec.AllowUnixImpersonation,
	}
	return cfg, nil
}

func buildBackend(spec *AuthzSpec) (authz.Backend, error) {
	switch spec.Type {
	case "simple":
		accounts := make(map[string]simple.Account, len(spec.Accounts))
		for user, a := range spec.Accounts {
			accounts[user] = simple.Account{Passwd: a.Passwd, Group: a.Group, Home: a.Home}
		}
		return simple.New(accounts), nil
	case "file":
		if spec.Path == "" {
			return nil, fmt.Errorf("file backend: path is required")
		}
		return file.New(spec.Path), nil
	case "unix":
		return unix.New(), nil
	case "sqlite":
		if spec.Path == "" {
			return nil, fmt.Errorf("sqlite backend: path is required")
		}
		backend, err := sqlite.Open(spec.Path)
		if err != nil {
			return nil, fmt.Errorf("sqlite backend: %w", err)
		}
		return backend, nil
	case "jwt":
		if spec.Inner == nil {
			return nil, fmt.Errorf("jwt backend: inner backend is required")
		}
		if spec.Secret == "" {
			return nil, fmt.Errorf("jwt backend: secret is required")
		}
		inner, err := buildBackend(spec.Inner)
		if err != nil {
			return nil, fmt.Errorf("jwt backend: inner: %w", err)
		}
		return jwtauthz.New(inner, []byte(spec.Secret), spec.Inner.Type), nil
	default:
		return nil, fmt.Errorf("unknown authz type %q", spec.Type)
	}
}

func buildScheme(spec *AuthnSpec, backend authz.Backend) (authn.Scheme, error) {
	switch spec.Type {
	case "none":
		return none.New(spec.User), nil
	case "basic":
		return basic.New(spec.Realm, backend), nil
	case "digest":
		return digest.New(spec.Realm, spec.Algorithm, backend), nil
	case "bearer":
		return bearer.New(bearer.Config{
			Realm:       spec.Realm,
			Issuer:      spec.Issuer,
			Audience:    spec.Audience,
			JWKSURL:     spec.JWKSURL,
			ResourceURL: spec.ResourceURL,
		}, backend), nil
	case "oauth2":
		return oauth2.New(oauth2.Config{
			ClientID:     spec.ClientID,
			ClientSecret: spec.ClientSecret,
			RedirectURL:  spec.RedirectURL,
			AuthURL:      spec.AuthURL,
			TokenURL:     spec.TokenURL,
			Scopes:       spec.Scopes,
			UsePKCE:      spec.UsePKCE,
			CallbackPath: spec.CallbackPath,
		}, backend), nil
	default:
		return nil, fmt.Errorf("unknown authn type %q", spec.Type)
	}
}
