package credential

import (
	"testing"

	zkr "github.com/zalando/go-keyring"
)

func TestRoundTrip(t *testing.T) {
	zkr.MockInit()

	got, err := Get()
	if err != nil || got != "" {
		t.Fatalf("Get on empty keychain = %q, %v", got, err)
	}
	if err := Set("sk-or-123"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got, _ := Get(); got != "sk-or-123" {
		t.Errorf("Get = %q", got)
	}

	if err := Set(""); err != nil {
		t.Fatalf("Set(empty): %v", err)
	}
	if got, _ := Get(); got != "" {
		t.Errorf("Get after clear = %q", got)
	}
	if err := Set(""); err != nil {
		t.Errorf("clearing twice: %v", err)
	}
}

func TestAvailable(t *testing.T) {
	zkr.MockInit()
	if !Available() {
		t.Error("mock keychain reported unavailable")
	}
	t.Setenv("VIVICA_KEYRING_DISABLED", "1")
	if Available() {
		t.Error("Available ignored VIVICA_KEYRING_DISABLED")
	}
}
