// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dbopen

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// Settings are the pieces of a PostgreSQL connection URL.
type Settings struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	AppName  string
}

// SettingsFromEnv reads PREFIX_HOST, PREFIX_PORT, PREFIX_USER,
// PREFIX_PASSWORD, PREFIX_DBNAME and PREFIX_SSLMODE. HOST and DBNAME are
// required; PORT defaults to 5432. OTEL_SERVICE_NAME becomes the
// application name.
func SettingsFromEnv(prefix string) (Settings, error) {
	prefix = normalizePrefix(prefix)
	s := Settings{
		Host:     os.Getenv(prefix + "HOST"),
		Port:     os.Getenv(prefix + "PORT"),
		User:     os.Getenv(prefix + "USER"),
		Password: os.Getenv(prefix + "PASSWORD"),
		DBName:   os.Getenv(prefix + "DBNAME"),
		SSLMode:  os.Getenv(prefix + "SSLMODE"),
		AppName:  os.Getenv("OTEL_SERVICE_NAME"),
	}

	var missing []string
	if s.Host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if s.DBName == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return Settings{}, fmt.Errorf(
			"missing required environment variable(s): %s",
			strings.Join(missing, ", "),
		)
	}
	if s.Port == "" {
		s.Port = "5432"
	}
	return s, nil
}

// URL renders the settings as a postgresql:// URL.
func (s Settings) URL() string {
	u := &url.URL{
		Scheme: "postgresql",
		Host:   s.Host + ":" + s.Port,
		Path:   s.DBName,
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}

	q := u.Query()
	if s.SSLMode != "" {
		q.Set("sslmode", s.SSLMode)
	}
	if name := sanitizeAppName(s.AppName); name != "" {
		q.Set("application_name", name)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// GetDatabaseURLFromEnv returns PREFIX_URL verbatim when set, otherwise the
// URL built by SettingsFromEnv.
func GetDatabaseURLFromEnv(prefix string) (string, error) {
	if urlStr := os.Getenv(normalizePrefix(prefix) + "URL"); urlStr != "" {
		return urlStr, nil
	}
	s, err := SettingsFromEnv(prefix)
	if err != nil {
		return "", err
	}
	return s.URL(), nil
}

func normalizePrefix(prefix string) string {
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// Postgres limits application_name to 63 bytes.
func sanitizeAppName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}
