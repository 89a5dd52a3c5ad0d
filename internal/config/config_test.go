package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() config should validate, got %v", err)
	}
}

func TestLoadWithoutPathOrEnvReturnsDefault(t *testing.T) {
	t.Setenv(ServerConfEnvVar, "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if len(cfg.Targets) != 1 {
		t.Errorf("expected default single-target config, got %d targets", len(cfg.Targets))
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hermes.yaml")
	yamlBody := `
node_id: 3
targets:
  - kind: ram
    path: mem0
    capacity: 1048576
    bandwidth: 10000
    latency: 1
    slab_sizes: [4096, 65536]
  - kind: ssd
    path: /mnt/ssd0
    capacity: 10485760
    bandwidth: 1000
    latency: 50
    slab_sizes: [65536, 1048576]
queue_manager:
  queue_depth: 128
  max_lanes: 4
dpe:
  policy: minimize_io_time
borg:
  period_ms: 500
  batch_size: 128
rpc:
  protocol: grpc
  port: 9000
  num_threads: 2
  hosts: ["node-a:9000", "node-b:9000"]
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) failed: %v", path, err)
	}
	if cfg.NodeID != 3 {
		t.Errorf("NodeID = %d, want 3", cfg.NodeID)
	}
	if len(cfg.Targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(cfg.Targets))
	}
	if cfg.Targets[1].Kind != "ssd" {
		t.Errorf("Targets[1].Kind = %q, want ssd", cfg.Targets[1].Kind)
	}
	if cfg.DPE.Policy != "minimize_io_time" {
		t.Errorf("DPE.Policy = %q, want minimize_io_time", cfg.DPE.Policy)
	}
	if cfg.BORG.PeriodMs != 500 {
		t.Errorf("BORG.PeriodMs = %d, want 500", cfg.BORG.PeriodMs)
	}
	if len(cfg.RPC.Hosts) != 2 {
		t.Errorf("expected 2 rpc hosts, got %d", len(cfg.RPC.Hosts))
	}
}

func TestLoadRejectsMissingTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("queue_manager:\n  queue_depth: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for config with no targets")
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	body := `
targets:
  - kind: ram
    path: mem0
    capacity: 1024
    slab_sizes: [512]
dpe:
  policy: quantum_leap
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unrecognized dpe policy")
	}
}
