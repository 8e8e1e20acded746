package config

import (
	"fmt"
	"strings"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
)

// MakeConnStr builds the key/value connection string of the session
// database, resolving the credential sources.
func MakeConnStr(conf Database) (string, error) {
	host, err := commoncfg.LoadValueFromSourceRef(conf.Host)
	if err != nil {
		return "", fmt.Errorf("loading db host: %w", err)
	}

	user, err := commoncfg.LoadValueFromSourceRef(conf.User)
	if err != nil {
		return "", fmt.Errorf("loading db user: %w", err)
	}

	password, err := commoncfg.LoadValueFromSourceRef(conf.Password)
	if err != nil {
		return "", fmt.Errorf("loading db password: %w", err)
	}

	parts := []string{
		"host=" + string(host),
		"user=" + string(user),
		"password=" + string(password),
		"dbname=" + conf.Name,
		"port=" + conf.Port,
	}
	if conf.SSLMode != "" {
		parts = append(parts, "sslmode="+conf.SSLMode)
	}

	return strings.Join(parts, " "), nil
}
