package config

import "testing"

func TestGetEnvOrDefaultFallsBackWhenUnset(t *testing.T) {
	if got := getEnvOrDefault("TECHY_TEST_UNSET_VAR", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestGetEnvOrDefaultUsesSetValue(t *testing.T) {
	t.Setenv("TECHY_TEST_VAR", "custom")
	if got := getEnvOrDefault("TECHY_TEST_VAR", "fallback"); got != "custom" {
		t.Fatalf("got %q", got)
	}
}

func TestGetEnvIntOrDefaultParsesValidInt(t *testing.T) {
	t.Setenv("TECHY_TEST_INT", "42")
	if got := getEnvIntOrDefault("TECHY_TEST_INT", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
}

func TestGetEnvIntOrDefaultFallsBackOnInvalidInt(t *testing.T) {
	t.Setenv("TECHY_TEST_INT_BAD", "not-a-number")
	if got := getEnvIntOrDefault("TECHY_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("got %d", got)
	}
}

func TestGetEnvBoolOrDefaultParsesValidBool(t *testing.T) {
	t.Setenv("TECHY_TEST_BOOL", "false")
	if got := getEnvBoolOrDefault("TECHY_TEST_BOOL", true); got != false {
		t.Fatalf("got %v", got)
	}
}

func TestGetEnvBoolOrDefaultFallsBackOnInvalidBool(t *testing.T) {
	t.Setenv("TECHY_TEST_BOOL_BAD", "maybe")
	if got := getEnvBoolOrDefault("TECHY_TEST_BOOL_BAD", true); got != true {
		t.Fatalf("got %v", got)
	}
}

func TestLoadFailsWithoutDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error when DATABASE_URL is unset")
	}
}

func TestLoadFailsWhenGitHubPrivateKeyUnreadable(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("GITHUB_APP_ID", "123")
	t.Setenv("GITHUB_PRIVATE_KEY_PATH", "/nonexistent/path.pem")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when the private key file can't be read")
	}
}
