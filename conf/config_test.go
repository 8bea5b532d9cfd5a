package conf

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	envVars = setup("test")
	state = configgood
	os.Exit(m.Run())
}

func TestGetEnv(t *testing.T) {
	type args struct {
		key string
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{ // Test Case #1
			"Single Value",
			args{"TEST_HELLO"},
			"world",
		},
		{ // Test Case #2
			"Multi-value separated by commas",
			args{"TEST_LIST"},
			"One,Two,Three,Four",
		},
		{ // Test Case #3
			"Path",
			args{"TEST_SOMEPATH"},
			"../../FAKE/PATH",
		},
		{ // Test Case #4
			"Number",
			args{"TEST_NUM"},
			"1234",
		},
		{ // Test Case #5
			"Boolean",
			args{"TEST_BOOL"},
			"true",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetEnv(tt.args.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("GetEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvFallsBackToEnvironment(t *testing.T) {
	t.Setenv("TEST_ONLY_IN_ENVIRONMENT", "from-env")
	assert.Equal(t, "from-env", GetEnv("TEST_ONLY_IN_ENVIRONMENT"))
}

func TestSetEnv(t *testing.T) {
	type args struct {
		protect *testing.T
		key     string
		value   string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			"Change Value",
			args{t, "TEST_SOMEPATH", "../somepath"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := SetEnv(tt.args.protect, tt.args.key, tt.args.value); (err != nil) != tt.wantErr {
				t.Errorf("SetEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if val := GetEnv(tt.args.key); val != tt.args.value {
				t.Errorf("New value entered (%v) into conf does not match value provided.", tt.args.value)
			}
		})
	}
}

func TestUnsetEnv(t *testing.T) {
	type args struct {
		protect *testing.T
		key     string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{
			"Remove Value",
			args{t, "TEST_HELLO"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := UnsetEnv(tt.args.protect, tt.args.key); (err != nil) != tt.wantErr {
				t.Errorf("UnsetEnv() error = %v, wantErr %v, %v", err, tt.wantErr, state)
			}
			if val := GetEnv(tt.args.key); val != "" {
				t.Errorf("UnsetEnv did not clear the key from conf. Value is %v", val)
			}
			if val := os.Getenv(tt.args.key); val != "" {
				t.Errorf("UnsetEnv did not clear the key from EV. Value is %v", val)
			}
		})
	}
	assert.NoError(t, SetEnv(t, "TEST_HELLO", "world"))
}

func Test_findEnv(t *testing.T) {
	tests := []struct {
		name     string
		location []string
		want     bool
		want1    string
	}{
		{"Test for local", []string{"test", "FAKE"}, true, "test"},
		{"Test for second location", []string{"FAKE", "test"}, true, "test"},
		{"Test for empty location", []string{"", "test"}, true, "test"},
		{"Test for both not existing", []string{"FAKE", "FAKE"}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, got1 := findEnv(tt.location)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want1, got1)
		})
	}
}

func TestGetEnvIntAndBool(t *testing.T) {
	assert.Equal(t, 1234, GetEnvInt("TEST_NUM", 1))
	assert.Equal(t, 7, GetEnvInt("TEST_DOESNOTEXIST", 7))
	assert.Equal(t, 7, GetEnvInt("TEST_HELLO", 7))
	assert.True(t, GetEnvBool("TEST_BOOL", false))
	assert.True(t, GetEnvBool("TEST_DOESNOTEXIST", true))
}

func TestLookupEnv(t *testing.T) {
	value, ok := LookupEnv("TEST_DOESNOTEXIST")
	assert.False(t, ok)
	assert.Equal(t, "", value)

	value, ok = LookupEnv("TEST_NUM")
	assert.True(t, ok)
	assert.Equal(t, "1234", value)
}

type NestedConfig struct {
	Enabled bool `conf:"TEST_BOOL"`
}

type testConfig struct {
	Greeting string `conf:"TEST_HELLO"`
	Number   int    `conf:"TEST_NUM"`
	Timeout  int    `conf:"TEST_TIMEOUT"`
	Missing  string `conf:"TEST_DOESNOTEXIST"`
	Ignored  string

	NestedConfig `conf:",squash"`
}

func TestCheckout(t *testing.T) {
	cfg := testConfig{Missing: "default", Ignored: "kept"}
	assert.NoError(t, Checkout(&cfg))

	assert.Equal(t, "world", cfg.Greeting)
	assert.Equal(t, 1234, cfg.Number)
	assert.Equal(t, 15, cfg.Timeout)
	assert.Equal(t, "default", cfg.Missing)
	assert.Equal(t, "kept", cfg.Ignored)
	assert.True(t, cfg.Enabled)
}

func TestCheckoutRequiresStructPointer(t *testing.T) {
	var cfg testConfig
	assert.Error(t, Checkout(cfg))
}
