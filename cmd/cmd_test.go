package cmd

import (
	"testing"
	"time"
)

func TestParseNow(t *testing.T) {
	now, err := parseNow("2026-01-22T12:00:00Z")
	if err != nil {
		t.Fatalf("parseNow: %v", err)
	}
	if got, want := now(), time.Date(2026, 1, 22, 12, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("now() = %s; want %s", got, want)
	}

	if _, err := parseNow("tomorrow"); err == nil {
		t.Error("parseNow(tomorrow) should fail")
	}

	live, err := parseNow("")
	if err != nil || time.Since(live()) > time.Minute {
		t.Errorf("parseNow(\"\") should return the wall clock")
	}
}

func TestOnOff(t *testing.T) {
	for in, want := range map[string]bool{"on": true, "YES": true, "off": false, "false": false} {
		got, err := onOff(in)
		if err != nil || got != want {
			t.Errorf("onOff(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := onOff("maybe"); err == nil {
		t.Error("onOff(maybe) should fail")
	}
}

func TestPlatform(t *testing.T) {
	defer func(p string) { platformFlag = p }(platformFlag)

	platformFlag = "Discord"
	if p, err := platform(); err != nil || p != "discord" {
		t.Errorf("platform() = %q, %v; want discord", p, err)
	}
	platformFlag = "slack"
	if _, err := platform(); err == nil {
		t.Error("platform() should reject slack")
	}
}

func TestOverrides(t *testing.T) {
	defer func() { flagDBPath, flagLogLevel, flagLogFormat = "", "", "" }()

	if got := overrides(); len(got) != 0 {
		t.Errorf("overrides() = %v; want empty", got)
	}
	flagDBPath, flagLogLevel = "/tmp/x.db", "debug"
	got := overrides()
	if got["db_path"] != "/tmp/x.db" || got["log_level"] != "debug" || len(got) != 2 {
		t.Errorf("overrides() = %v", got)
	}
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"convert"}, {"serve"}, {"clean"},
		{"tz", "set"}, {"user", "dm"}, {"channel", "list"},
		{"group", "add-tz"}, {"group", "clear-tz"}, {"events"},
		{"config", "path"}, {"directory", "init"},
	} {
		c, _, err := rootCmd.Find(path)
		if err != nil || c.Name() != path[len(path)-1] {
			t.Errorf("command %v not registered", path)
		}
	}
}
