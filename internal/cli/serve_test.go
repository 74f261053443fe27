package cli

import "testing"

func TestGenerateToken(t *testing.T) {
	a := generateToken()
	b := generateToken()
	if len(a) != 32 {
		t.Fatalf("token length = %d, want 32 hex chars", len(a))
	}
	if a == b {
		t.Fatalf("two generated tokens are identical")
	}
}

func TestStartMDNSServiceRejectsBadAddr(t *testing.T) {
	if _, err := startMDNSService("no-port-here", "http://x"); err == nil {
		t.Fatalf("expected error for address without port")
	}
	if _, err := startMDNSService("127.0.0.1:notanumber", "http://x"); err == nil {
		t.Fatalf("expected error for non-numeric port")
	}
}
