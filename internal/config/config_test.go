package config

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name            string
		flags           []string
		env             map[string]string
		wantRunAddress  string
		wantDatabaseURI string
		wantRedis       string
		wantAuthSecret  string
	}{
		{
			name:           "defaults",
			wantRunAddress: "localhost:8080",
			wantAuthSecret: "vapeshop-secret",
		},
		{
			name:            "flags only",
			flags:           []string{"-a", ":9090", "-d", "postgres://localhost/vapeshop", "-r", "localhost:6379"},
			wantRunAddress:  ":9090",
			wantDatabaseURI: "postgres://localhost/vapeshop",
			wantRedis:       "localhost:6379",
			wantAuthSecret:  "vapeshop-secret",
		},
		{
			name:  "env only",
			env:   map[string]string{
				"RUN_ADDRESS":  ":7070",
				"DATABASE_URI": "postgres://env/vapeshop",
				"AUTH_SECRET":  "env-secret",
			},
			wantRunAddress:  ":7070",
			wantDatabaseURI: "postgres://env/vapeshop",
			wantAuthSecret:  "env-secret",
		},
		{
			name:  "env overrides flags",
			flags: []string{"-a", ":9090", "-d", "postgres://flag/vapeshop"},
			env: map[string]string{
				"RUN_ADDRESS":  ":7070",
				"DATABASE_URI": "postgres://env/vapeshop",
			},
			wantRunAddress:  ":7070",
			wantDatabaseURI: "postgres://env/vapeshop",
			wantAuthSecret:  "vapeshop-secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()
			os.Args = append([]string{"test"}, tt.flags...)

			cfg, err := Parse()
			require.NoError(t, err)

			assert.Equal(t, tt.wantRunAddress, cfg.RunAddress)
			assert.Equal(t, tt.wantDatabaseURI, cfg.DatabaseURI)
			assert.Equal(t, tt.wantRedis, cfg.RedisAddress)
			assert.Equal(t, tt.wantAuthSecret, cfg.AuthSecret)
		})
	}
}
