package debug

import (
	"os"
	"strings"
	"testing"
)

func TestDisabledLoggerIsNoOp(t *testing.T) {
	if Enabled() {
		t.Fatalf("Enabled() = true before Init")
	}
	// Must not panic.
	Log("test", "hello")
	Logf("test", "hello %d", 1)
	LogKV("test", "hello", "k", "v")
	if Path() != "" {
		t.Fatalf("Path() = %q, want empty", Path())
	}
}

func TestShouldEnableFromEnv(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"1", true},
		{"true", true},
		{"ON", true},
		{"0", false},
		{"garbage", false},
	}
	for _, tc := range cases {
		t.Setenv(EnvEnabled, tc.value)
		if got := ShouldEnableFromEnv(); got != tc.want {
			t.Fatalf("ShouldEnableFromEnv() with %q = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestInitWritesHeader(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := Init()
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer Close()

	LogKV("test", "entry", "session", "s1")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "OVERSEER DEBUG LOG") {
		t.Fatalf("log missing header: %q", content)
	}
	if !strings.Contains(content, "session=s1") {
		t.Fatalf("log missing kv line: %q", content)
	}
}
