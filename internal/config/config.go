// Package config loads the connections file and the publisher configuration.
//
// Both files may be JSON or YAML; the format is chosen from the file extension.
// Every failure is returned as an apperr configuration error, which aborts the run.
package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Connections is the top level of the connections file.
type Connections struct {
	Databases []Database `json:"databases" yaml:"databases" validate:"required,min=1,dive"`
}

// Database describes one database to document.
type Database struct {
	// Name identifies the database in output paths and page titles.
	Name string `json:"name" yaml:"name" validate:"required,excludesall=/\\,ne=.,ne=.."`

	// Driver is postgres (default), mysql or sqlite.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty" validate:"omitempty,oneof=postgres mysql sqlite"`

	Username string `json:"username" yaml:"username" validate:"required_unless=Driver sqlite"`
	Password string `json:"password" yaml:"password"`

	// Endpoint is the host name. EndpointRW is accepted as an alias.
	Endpoint   string `json:"endpoint" yaml:"endpoint" validate:"required_unless=Driver sqlite"`
	EndpointRW string `json:"endpoint_rw,omitempty" yaml:"endpoint_rw,omitempty"`

	Port int `json:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`

	// Database is the database name, or the file path for sqlite.
	Database string `json:"database" yaml:"database" validate:"required"`

	// SSLMode is passed through to PostgreSQL (default: prefer).
	SSLMode string `json:"sslmode,omitempty" yaml:"sslmode,omitempty"`

	// ExcludeSchemas are skipped in addition to the system schemas.
	ExcludeSchemas []string `json:"exclude_schemas,omitempty" yaml:"exclude_schemas,omitempty"`
}

// applyDefaults fills aliases and per-driver defaults.
func (d *Database) applyDefaults() {
	if d.Driver == "" {
		d.Driver = DriverPostgres
	}
	if d.Endpoint == "" {
		d.Endpoint = d.EndpointRW
	}
	if d.Port == 0 {
		switch d.Driver {
		case DriverPostgres:
			d.Port = 5432
		case DriverMySQL:
			d.Port = 3306
		}
	}
}

// DSN returns the driver-specific connection string.
func (d Database) DSN() string {
	switch d.Driver {
	case DriverMySQL:
		cfg := mysql.NewConfig()
		cfg.User = d.Username
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Endpoint, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
		return cfg.FormatDSN()
	case DriverSQLite:
		return d.Database
	default:
		return d.postgresURL(nil).String()
	}
}

// SchemaDSN returns a connection string whose search path is limited to one
// schema. Only PostgreSQL supports this; other drivers return DSN().
func (d Database) SchemaDSN(schemaName string) string {
	if d.Driver != DriverPostgres {
		return d.DSN()
	}
	extra := url.Values{}
	extra.Set("options", "-c search_path="+schemaName)
	return d.postgresURL(extra).String()
}

func (d Database) postgresURL(extra url.Values) *url.URL {
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     net.JoinHostPort(d.Endpoint, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: q.Encode(),
	}
	return u
}

// Redacted returns a description safe for logs.
func (d Database) Redacted() string {
	if d.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite:%s", d.Database)
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s", d.Driver, d.Username, d.Endpoint, d.Port, d.Database)
}

// Title strategies for published pages.
const (
	TitleFixed       = "fixed"
	TitleTimestamped = "timestamped"
)

// DefaultPageTitle is used when the publisher config has no page_title.
const DefaultPageTitle = "Database Documentation - {database}"

// Publisher holds the wiki connection and publication policy.
type Publisher struct {
	URL      string `json:"url" yaml:"url" validate:"required,url"`
	Username string `json:"username" yaml:"username" validate:"required"`
	APIToken string `json:"api_token" yaml:"api_token" validate:"required"`
	SpaceKey string `json:"space_key" yaml:"space_key" validate:"required"`

	// PageTitle is the base title template; {database} expands to the database name.
	PageTitle string `json:"page_title,omitempty" yaml:"page_title,omitempty"`

	// TitleStrategy is fixed or timestamped (default).
	TitleStrategy string `json:"title_strategy,omitempty" yaml:"title_strategy,omitempty" validate:"omitempty,oneof=fixed timestamped"`

	// ParentPageID places new pages under an existing page.
	ParentPageID string `json:"parent_page_id,omitempty" yaml:"parent_page_id,omitempty"`

	Retention Retention `json:"retention" yaml:"retention"`
}

// Retention holds per-tier keep counts. Nil means the default for that tier.
type Retention struct {
	Weekly    *int `json:"weekly,omitempty" yaml:"weekly,omitempty" validate:"omitempty,gte=0"`
	Monthly   *int `json:"monthly,omitempty" yaml:"monthly,omitempty" validate:"omitempty,gte=0"`
	Quarterly *int `json:"quarterly,omitempty" yaml:"quarterly,omitempty" validate:"omitempty,gte=0"`
}

// Default keep counts per retention tier.
const (
	DefaultKeepWeekly    = 4
	DefaultKeepMonthly   = 6
	DefaultKeepQuarterly = 4
)

func (p *Publisher) applyDefaults() {
	if p.PageTitle == "" {
		p.PageTitle = DefaultPageTitle
	}
	if p.TitleStrategy == "" {
		p.TitleStrategy = TitleTimestamped
	}
	p.URL = strings.TrimRight(p.URL, "/")
	if p.Retention.Weekly == nil {
		p.Retention.Weekly = intPtr(DefaultKeepWeekly)
	}
	if p.Retention.Monthly == nil {
		p.Retention.Monthly = intPtr(DefaultKeepMonthly)
	}
	if p.Retention.Quarterly == nil {
		p.Retention.Quarterly = intPtr(DefaultKeepQuarterly)
	}
}

// BaseTitle expands the page title template for one database.
func (p Publisher) BaseTitle(database string) string {
	tmpl := p.PageTitle
	if tmpl == "" {
		tmpl = DefaultPageTitle
	}
	return strings.ReplaceAll(tmpl, "{database}", database)
}

// CheckFamilies reports an error when two databases would expand to the same
// base title and so share one page family.
func (p Publisher) CheckFamilies(databases []string) error {
	seen := make(map[string]string, len(databases))
	for _, db := range databases {
		base := p.BaseTitle(db)
		if other, ok := seen[base]; ok {
			return fmt.Errorf("page_title %q gives databases %q and %q the same page title %q; include {database}", p.PageTitle, other, db, base)
		}
		seen[base] = db
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}
