package main

import (
	"testing"
	"time"
)

func TestConfigureExternalHTTPClient(t *testing.T) {
	original := externalHTTPClient.Timeout
	t.Cleanup(func() { externalHTTPClient.Timeout = original })

	if got := ConfigureExternalHTTPClient(0); got != defaultExternalHTTPTimeout {
		t.Fatalf("zero seconds applied %v, want default %v", got, defaultExternalHTTPTimeout)
	}
	if got := ConfigureExternalHTTPClient(5); got != 5*time.Second {
		t.Fatalf("applied %v, want 5s", got)
	}
	if externalHTTPClient.Timeout != 5*time.Second {
		t.Fatalf("client timeout = %v, want 5s", externalHTTPClient.Timeout)
	}
}
