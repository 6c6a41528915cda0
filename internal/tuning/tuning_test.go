package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tune, err := Load("../../configs/gsync.yaml")
	if err != nil {
		t.Fatalf("load gsync.yaml: %v", err)
	}
	if tune.Server.GridN != 10 || tune.Server.Redundancy != 3 || tune.Server.RateHz != 20 {
		t.Fatalf("unexpected server tuning: %+v", tune.Server)
	}
	if tune.Client.Scenario != "baseline" {
		t.Fatalf("scenario=%q", tune.Client.Scenario)
	}
	if tune.Server.TickInterval().Milliseconds() != 50 {
		t.Fatalf("tick interval=%v", tune.Server.TickInterval())
	}
}

func TestLoad_PartialFileNormalized(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gsync.yaml")
	if err := os.WriteFile(p, []byte("server:\n  rate_hz: 10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Server.RateHz != 10 || tune.Server.GridN != 10 || tune.Server.Port != 10000 {
		t.Fatalf("normalize: %+v", tune.Server)
	}
	if tune.Client.ExpectedRateHz != 20 {
		t.Fatalf("expected_rate_hz=%d", tune.Client.ExpectedRateHz)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := []func(*Tuning){
		func(t *Tuning) { t.Server.GridN = 16 },
		func(t *Tuning) { t.Server.Redundancy = 0 },
		func(t *Tuning) { t.Server.RateHz = 0 },
		func(t *Tuning) { t.Client.PlayerID = 9 },
		func(t *Tuning) { t.ProtocolVersion = 2 },
	}
	for i, mutate := range cases {
		tune := Defaults()
		mutate(&tune)
		if err := tune.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLoad_EmptyPathDefaults(t *testing.T) {
	tune, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.Server.Addr() != "127.0.0.1:10000" {
		t.Fatalf("addr=%s", tune.Server.Addr())
	}
}
