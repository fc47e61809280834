// Package config loads the JSON server configuration, the same way the
// teacher's helpers.DecodeFile loads its user database.
package config

import (
	"github.com/gopistolet/smtpd/helpers"
	"github.com/gopistolet/smtpd/smtp"
)

// Load reads a JSON config file into smtp.DefaultConfig()'s base.
func Load(path string) (smtp.Config, error) {
	cfg := smtp.DefaultConfig()
	if err := helpers.DecodeFile(path, &cfg); err != nil {
		return smtp.Config{}, err
	}
	return cfg, nil
}
