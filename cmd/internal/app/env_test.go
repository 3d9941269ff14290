package app

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("AQI_TEST_STR", "  value ")
	t.Setenv("AQI_TEST_BOOL", "yes")
	t.Setenv("AQI_TEST_INT", "-3")
	t.Setenv("AQI_TEST_INT32", "7")
	t.Setenv("AQI_TEST_DUR", "90s")
	t.Setenv("AQI_TEST_CSV", " , ")

	if got := EnvString("AQI_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString=%q", got)
	}
	if got := EnvString("AQI_TEST_UNSET", "def"); got != "def" {
		t.Fatalf("EnvString default=%q", got)
	}
	if got := EnvBool("AQI_TEST_BOOL", true); got != true {
		t.Fatalf("EnvBool should keep default on unparsable input")
	}
	if got := EnvInt("AQI_TEST_INT", 5); got != 5 {
		t.Fatalf("EnvInt should reject non-positive, got %d", got)
	}
	if got := EnvInt32("AQI_TEST_INT32", 1); got != 7 {
		t.Fatalf("EnvInt32=%d", got)
	}
	if got := EnvDuration("AQI_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("EnvDuration=%v", got)
	}
	if got := EnvCSV("AQI_TEST_CSV", []string{"*"}); len(got) != 1 || got[0] != "*" {
		t.Fatalf("EnvCSV with only separators should keep default, got %v", got)
	}
}
