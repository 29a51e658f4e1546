package config

import (
	"errors"
	"io/fs"

	"github.com/spf13/viper"
)

// isNotExist reports a missing config file. SetConfigFile bypasses viper's
// search, so a missing explicit path surfaces as an fs error.
func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}
