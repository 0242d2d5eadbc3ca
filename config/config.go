// Config loads configuration.
package config

import (
	"net/http"
	"os"
	"strconv"
)

const Version = "1.0"

// GetInt loads the environment variable varName, converts it to an
// integer, and returns that integer or an error.
func GetInt(varName string) (int, error) {
	envVar := os.Getenv(varName)
	return strconv.Atoi(envVar)
}

// Get loads the environment variable varName, falling back to
// defaultVal when it is unset or empty.
func Get(varName string, defaultVal string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return defaultVal
}

// SetMaxIdleConnsPerHost sets the MaxIdleConnsPerHost value for the default
// HTTP transport. If you are using a custom transport, calling this function
// won't change anything.
func SetMaxIdleConnsPerHost(maxConns int) {
	http.DefaultTransport.(*http.Transport).MaxIdleConnsPerHost = maxConns
}
