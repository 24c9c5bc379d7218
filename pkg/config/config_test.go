package config

import "testing"

func TestLoadRegistryURLsFiltersPrefix(t *testing.T) {
	environ := []string{
		"REGISTRY_URL_CA=https://ca.iis.local",
		"REGISTRY_URL_NY=https://ny.iis.local",
		"DB_URL=postgres://x",
		"REGISTRY_URL_=https://empty-state-ignored",
	}
	urls := loadRegistryURLs(environ)
	if len(urls) != 2 {
		t.Fatalf("expected 2 registry URLs, got %d", len(urls))
	}
	if urls["CA"] != "https://ca.iis.local" {
		t.Fatalf("unexpected CA url: %s", urls["CA"])
	}
}

func TestRegistryURLLookupIsCaseInsensitive(t *testing.T) {
	cfg := &Config{RegistryURLByState: map[string]string{"CA": "https://ca.iis.local"}}
	u, ok := cfg.RegistryURL("ca")
	if !ok || u != "https://ca.iis.local" {
		t.Fatalf("expected case-insensitive lookup to succeed, got %q %v", u, ok)
	}
	if _, ok := cfg.RegistryURL("ZZ"); ok {
		t.Fatal("expected missing state to report ok=false")
	}
}

func TestGetenvInt64DefaultFallsBackOnInvalid(t *testing.T) {
	t.Setenv("CLOCK_SKEW_MAX_MS", "not-a-number")
	if got := getenvInt64Default("CLOCK_SKEW_MAX_MS", 5000); got != 5000 {
		t.Fatalf("expected fallback default, got %d", got)
	}
}
