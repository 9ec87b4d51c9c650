package engine

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/ingest/internal/errs"
)

// ConnConfig is the connection configuration supplied with every request.
// Token is the password equivalent for the user.
type ConnConfig struct {
	Engine   string `json:"engine,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	User     string `json:"user"`
	Token    string `json:"token"`
	Table    string `json:"table,omitempty"`
}

// URL renders the connection target without credentials.
// The result depends only on Engine, Host, Port and Database.
func (c ConnConfig) URL() string {
	return fmt.Sprintf("%s://%s:%d/%s", c.Engine, c.Host, c.Port, c.Database)
}

// Validate checks the fields every network engine needs and reports all
// missing fields at once.
func (c ConnConfig) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Host) == "" {
		missing = append(missing, "host")
	}
	if c.Port <= 0 || c.Port > 65535 {
		missing = append(missing, "port")
	}
	if strings.TrimSpace(c.Database) == "" {
		missing = append(missing, "database")
	}
	if strings.TrimSpace(c.User) == "" {
		missing = append(missing, "user")
	}
	if strings.TrimSpace(c.Token) == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return errs.Newf(errs.KindValidation, "invalid connection configuration: missing or invalid %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireTable reports a schema error when no table is configured.
func (c ConnConfig) RequireTable() error {
	if strings.TrimSpace(c.Table) == "" {
		return errs.New(errs.KindSchema, "no table specified")
	}
	return CheckIdentifier(c.Table)
}

// String is safe to log.
func (c ConnConfig) String() string {
	if c.Table == "" {
		return c.URL()
	}
	return c.URL() + "#" + c.Table
}
