// Package config loads the bar's static configuration.
//
// A configuration is built in layers: built-in defaults, then each file
// passed to the Loader in order, then SWAYBAR_* environment variables.
// Files may be JSON, YAML (.yaml, .yml) or TOML; the format is chosen by
// extension. Maps merge key by key with the later layer winning; lists,
// including the module list, are replaced whole.
//
// # Example
//
//	protocol:
//	  click_events: true
//	backoff:
//	  initial: 1s
//	  max: 1m
//	modules:
//	  - kind: poll
//	    name: weather
//	    poll:
//	      url: https://wttr.in/?format=j1
//	      field: current_condition.0.temp_C
//	      interval: 10m
//	      format: "{{.Value}}°C"
//	  - kind: clock
//	    name: time
//	    clock:
//	      format: "15:04"
//	      alt_format: "Mon 2006-01-02"
//
// Durations are written as Go duration strings ("250ms", "1m30s") or with a
// day suffix ("2d"), or as integer nanoseconds.
//
// # Environment Overrides
//
//	SWAYBAR_NATS_URL          nats.url
//	SWAYBAR_METRICS_PORT      metrics.port
//	SWAYBAR_MIN_INTERVAL      aggregator.min_interval
//	SWAYBAR_SHUTDOWN_TIMEOUT  shutdown_timeout
//	SWAYBAR_CLICK_EVENTS      protocol.click_events
//
// # Validation
//
// The merged tree is checked against an embedded JSON schema (see Schema),
// which rejects unknown keys and malformed values, and then by
// Config.Validate for constraints that span fields. Both report errors that
// satisfy errors.IsInvalid.
//
// Files larger than 1MB, non-regular files and JSON nested deeper than 64
// levels are refused before decoding.
package config
