// Package config loads Hermes's YAML configuration (spec.md §6): target
// device descriptions, queue manager tuning, DPE policy selection, BORG
// scheduling, and RPC transport settings.
//
// # Loading
//
// Load reads a server config from the path named by the HERMES_CONF
// environment variable, or an explicit path (e.g. from a --config flag).
// ClientConfEnvVar names HERMES_CLIENT_CONF for adapter/client processes
// outside this core's scope; this package has no loader that reads it.
//
// The teacher loads all of its runtime configuration from flat environment
// variables (NODE_ID, COORDINATOR_ADDR, ...); Hermes instead follows
// spec.md §6's structured YAML file, using gopkg.in/yaml.v3 (already an
// indirect dependency of the teacher's go.mod) for unmarshalling.
package config
