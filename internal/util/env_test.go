package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"No", true, false},
		{"off", true, false},
		{"  true  ", false, true},
		{"maybe", true, true},
		{"maybe", false, false},
	}
	for _, tc := range cases {
		t.Setenv("GUTCHECK_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("GUTCHECK_TEST_BOOL", tc.defaultValue); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.defaultValue, got, tc.want)
		}
	}
}

func TestParseBoolEnvUnset(t *testing.T) {
	if !ParseBoolEnv("GUTCHECK_TEST_BOOL_UNSET", true) {
		t.Error("unset variable should return the default")
	}
	if ParseBoolEnv("GUTCHECK_TEST_BOOL_UNSET", false) {
		t.Error("unset variable should return the default")
	}
}
