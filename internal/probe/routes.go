package probe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// ErrUnsupportedFormat is returned for route files that are neither YAML
// nor TOML
var ErrUnsupportedFormat = errors.New("unsupported route file format")

// Portal identifies which half of the SPA a route belongs to
type Portal string

const (
	PortalAdmin  Portal = "admin"
	PortalTenant Portal = "tenant"
)

// Route is one SPA route expected to be served
type Route struct {
	Path         string `yaml:"path" toml:"path"`
	Name         string `yaml:"name" toml:"name"`
	Portal       Portal `yaml:"portal" toml:"portal"`
	ExpectStatus int    `yaml:"expect_status" toml:"expect_status"`
	ExpectHTML   *bool  `yaml:"expect_html" toml:"expect_html"`
}

// WantStatus returns the expected status code, 200 unless set
func (r Route) WantStatus() int {
	if r.ExpectStatus == 0 {
		return 200
	}
	return r.ExpectStatus
}

// WantHTML reports whether the response must be an HTML document
func (r Route) WantHTML() bool {
	return r.ExpectHTML == nil || *r.ExpectHTML
}

type routeFile struct {
	Routes []Route `yaml:"routes" toml:"routes"`
}

// LoadRoutes reads a route table from a .yaml, .yml or .toml file
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route file: %w", err)
	}
	return ParseRoutes(data, filepath.Ext(path))
}

// ParseRoutes decodes a route table. format is a file extension such as
// ".yaml" or "toml".
func ParseRoutes(data []byte, format string) ([]Route, error) {
	var file routeFile

	switch strings.TrimPrefix(strings.ToLower(format), ".") {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse yaml routes: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse toml routes: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	for i := range file.Routes {
		if err := normalizeRoute(&file.Routes[i]); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return file.Routes, nil
}

func normalizeRoute(r *Route) error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("path %q must start with /", r.Path)
	}
	if r.Name == "" {
		r.Name = r.Path
	}
	switch r.Portal {
	case "":
		if r.Path == "/admin" || strings.HasPrefix(r.Path, "/admin/") {
			r.Portal = PortalAdmin
		} else {
			r.Portal = PortalTenant
		}
	case PortalAdmin, PortalTenant:
	default:
		return fmt.Errorf("unknown portal %q", r.Portal)
	}
	if r.ExpectStatus < 0 || r.ExpectStatus > 599 {
		return fmt.Errorf("invalid expected status %d", r.ExpectStatus)
	}
	return nil
}

// DefaultRoutes returns the SPA's built-in route table
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Name: "Landing", Portal: PortalTenant},
		{Path: "/login", Name: "Login", Portal: PortalTenant},
		{Path: "/dashboard", Name: "Dashboard", Portal: PortalTenant},
		{Path: "/projects", Name: "Projects", Portal: PortalTenant},
		{Path: "/equipment", Name: "Equipment", Portal: PortalTenant},
		{Path: "/hr", Name: "HR", Portal: PortalTenant},
		{Path: "/financial", Name: "Financial Integrations", Portal: PortalTenant},
		{Path: "/settings", Name: "Settings", Portal: PortalTenant},
		{Path: "/admin", Name: "Admin Dashboard", Portal: PortalAdmin},
		{Path: "/admin/tenants", Name: "Tenants", Portal: PortalAdmin},
		{Path: "/admin/users", Name: "Users", Portal: PortalAdmin},
		{Path: "/admin/billing", Name: "Billing", Portal: PortalAdmin},
		{Path: "/admin/settings", Name: "Admin Settings", Portal: PortalAdmin},
	}
}
