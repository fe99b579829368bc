// Package testutil provides testing utilities for the Cerberus client.
package testutil

import (
	"testing"

	"github.com/systmms/cerberus-go/pkg/properties"
)

// cerberusEnv lists every environment variable the client reads.
var cerberusEnv = []string{
	"CERBERUS_TOKEN",
	"CERBERUS_ADDR",
	"CERBERUS_REGION",
	"AWS_REGION",
	"AWS_DEFAULT_REGION",
	"AWS_LAMBDA_FUNCTION_NAME",
	"AWS_LAMBDA_FUNCTION_VERSION",
	"AWS_EC2_METADATA_DISABLED",
	"AWS_CONTAINER_CREDENTIALS_RELATIVE_URI",
	"AWS_CONTAINER_CREDENTIALS_FULL_URI",
	"AWS_CONTAINER_AUTHORIZATION_TOKEN",
}

// cerberusProperties lists every property the client reads.
var cerberusProperties = []string{
	properties.Token,
	properties.Addr,
	properties.Region,
}

// IsolateEnv blanks the variables and properties the client reads so a test
// starts from a known state, then applies vars. Everything is restored when
// the test completes.
//
// Tests calling IsolateEnv must not run in parallel.
//
// Example usage:
//
//	IsolateEnv(t, map[string]string{
//	    "CERBERUS_TOKEN": "s.test",
//	    "CERBERUS_ADDR":  server.URL,
//	})
func IsolateEnv(t *testing.T, vars map[string]string) {
	t.Helper()

	for _, key := range cerberusEnv {
		t.Setenv(key, "")
	}
	for key, value := range vars {
		t.Setenv(key, value)
	}

	saved := make(map[string]string)
	for _, key := range cerberusProperties {
		if value, ok := properties.Lookup(key); ok {
			saved[key] = value
		}
		properties.Clear(key)
	}
	t.Cleanup(func() {
		for _, key := range cerberusProperties {
			properties.Clear(key)
		}
		for key, value := range saved {
			properties.Set(key, value)
		}
	})
}
