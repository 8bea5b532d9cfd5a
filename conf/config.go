package conf

/*
   This is a package that wraps viper, a package designed to handle config
   files, for the gateway.

   Lookups check the configuration file first and fall back to the process
   environment for any variable the file does not track. Deployed environments
   (ECS tasks) ship no file, so everything comes from the environment there.

   Assumptions:
   1. The configuration file is an env file named local.env
   2. The configuration file, once it is made available to the application,
   will stay immutable during the uptime of the application (exception is test)
*/

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// An instance of the viper struct containing the conf information. Only made
// accessible through public functions GetEnv, SetEnv, etc.
var envVars *viper.Viper

const (
	configgood    uint8 = 0
	configbad     uint8 = 1
	noconfigfound uint8 = 2
)

var state uint8 = configgood

const defaultConfDir = "/opt/clinical-data-gateway/conf"

func setup(dir string) *viper.Viper {
	var v = viper.New()
	v.SetConfigName("local")
	v.SetConfigType("env")
	v.AddConfigPath(dir)
	// Viper is lazy, do the read and parse of the config file
	if err := v.ReadInConfig(); err != nil {
		state = configbad
	}

	return v
}

func init() {
	var locations = []string{
		os.Getenv("GATEWAY_CONF_DIR"),
		defaultConfDir,
	}

	if success, loc := findEnv(locations); success {
		envVars = setup(loc)
	} else {
		state = noconfigfound
	}
}

// findEnv walks the candidate directories in order and returns the first one
// holding a local.env file.
func findEnv(location []string) (bool, string) {
	if len(location) == 0 {
		return false, ""
	}

	if location[0] != "" {
		if _, err := os.Stat(location[0] + "/local.env"); err == nil {
			return true, location[0]
		}
	}

	return findEnv(location[1:])
}

// GetEnv retrieves the value stored in conf. If it does not exist the process
// environment is consulted, and "" is returned when neither has it.
func GetEnv(key string) string {
	value, _ := LookupEnv(key)
	return value
}

// LookupEnv augments os.LookupEnv to look in the config file first.
func LookupEnv(key string) (string, bool) {
	if state == configgood {
		if value := envVars.GetString(key); value != "" {
			return value, true
		}
	}

	return os.LookupEnv(key)
}

// GetEnvInt returns the integer stored under key, or defaultValue when the key
// is unset or not a number.
func GetEnvInt(key string, defaultValue int) int {
	v := GetEnv(key)
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return i
}

// GetEnvBool returns the boolean stored under key, or defaultValue when the key
// is unset or unparseable.
func GetEnvBool(key string, defaultValue bool) bool {
	v := GetEnv(key)
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// SetEnv adds key values into conf. This function should only be used either in
// this package itself or testing. Protect parameter is type *testing.T, and is
// there to ensure developers knowingly use it in the appropriate scope.
func SetEnv(protect *testing.T, key string, value string) error {
	if state == configgood {
		envVars.Set(key, value)
		return nil
	}

	return os.Setenv(key, value)
}

// UnsetEnv "unsets" a variable. Like SetEnv, this should only be used either in
// this package itself or testing.
func UnsetEnv(protect *testing.T, key string) error {
	if state == configgood {
		envVars.Set(key, "")
	}

	return os.Unsetenv(key)
}

// Checkout populates the struct pointed to by v. Fields are matched by their
// `conf:"KEY"` tag; nested structs tagged `conf:",squash"` are flattened.
// Keys without a value leave the field untouched, so callers can pre-populate
// defaults.
func Checkout(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return errors.New("conf: Checkout requires a pointer to a struct")
	}

	values := make(map[string]interface{})
	collectKeys(rv.Elem().Type(), values)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "conf",
		WeaklyTypedInput: true,
		Squash:           true,
		Result:           v,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(values)
}

func collectKeys(t reflect.Type, values map[string]interface{}) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("conf")
		if tag == "" || tag == "-" {
			continue
		}

		name := strings.Split(tag, ",")[0]
		if name == "" && strings.Contains(tag, "squash") && field.Type.Kind() == reflect.Struct {
			collectKeys(field.Type, values)
			continue
		}

		if value, ok := LookupEnv(name); ok && value != "" {
			values[name] = value
		}
	}
}
