package workflow

import (
	"encoding/json"
	"fmt"
	"os"
)

// Action is a closed set of step behaviors, resolved when definitions are
// loaded so step execution never dispatches on free-form strings.
type Action string

const (
	ActionCommand        Action = "command"         // run a shell command on the device
	ActionServiceRestart Action = "service_restart" // restart a named service
	ActionReboot         Action = "reboot"          // reboot the device
	ActionDelay          Action = "delay"           // wait for a duration (e.g. "30s")
	ActionHTTPCheck      Action = "http_check"      // GET a URL and expect 2xx
)

var knownActions = map[Action]bool{
	ActionCommand:        true,
	ActionServiceRestart: true,
	ActionReboot:         true,
	ActionDelay:          true,
	ActionHTTPCheck:      true,
}

type Step struct {
	Name     string `json:"name"`
	Action   Action `json:"action"`
	Arg      string `json:"arg,omitempty"`
	Required bool   `json:"required"`
}

// Definition is a statically defined, ordered sequence of steps executed
// against one target device. Rollback is not generic: a compensating action
// must be authored as an explicit later step.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("workflow definition missing name")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", d.Name)
	}
	for _, s := range d.Steps {
		if s.Name == "" {
			return fmt.Errorf("workflow %q has a step without a name", d.Name)
		}
		if !knownActions[s.Action] {
			return fmt.Errorf("workflow %q step %q: unknown action %q", d.Name, s.Name, s.Action)
		}
	}
	return nil
}

// builtinDefinitions ships the standard remediation workflows.
func builtinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "restart-services",
			Description: "Restart core services and verify the device responds",
			Steps: []Step{
				{Name: "restart-cron", Action: ActionServiceRestart, Arg: "cron", Required: true},
				{Name: "restart-ssh", Action: ActionServiceRestart, Arg: "ssh", Required: true},
				{Name: "settle", Action: ActionDelay, Arg: "10s", Required: false},
				{Name: "verify", Action: ActionCommand, Arg: "uptime", Required: true},
			},
		},
		{
			Name:        "clear-disk-space",
			Description: "Reclaim disk space from logs, caches and temp files",
			Steps: []Step{
				{Name: "vacuum-journal", Action: ActionCommand, Arg: "journalctl --vacuum-time=3d", Required: false},
				{Name: "clean-apt-cache", Action: ActionCommand, Arg: "apt-get clean", Required: false},
				{Name: "clean-tmp", Action: ActionCommand, Arg: "find /tmp -type f -atime +2 -delete", Required: true},
				{Name: "report-usage", Action: ActionCommand, Arg: "df -h /", Required: true},
			},
		},
		{
			Name:        "apply-updates",
			Description: "Apply pending security updates and reboot if needed",
			Steps: []Step{
				{Name: "refresh-index", Action: ActionCommand, Arg: "apt-get update", Required: true},
				{Name: "upgrade", Action: ActionCommand, Arg: "apt-get -y upgrade", Required: true},
				{Name: "reboot-if-required", Action: ActionCommand, Arg: "test -f /var/run/reboot-required && reboot || true", Required: false},
			},
		},
	}
}

// LoadDefinitions returns the built-in catalog, optionally extended or
// overridden by a JSON file of additional definitions. Validation happens
// here, once, so Start never sees an unknown action.
func LoadDefinitions(path string) (map[string]Definition, error) {
	defs := make(map[string]Definition)
	for _, d := range builtinDefinitions() {
		defs[d.Name] = d
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read workflow file: %w", err)
		}
		var extra []Definition
		if err := json.Unmarshal(data, &extra); err != nil {
			return nil, fmt.Errorf("parse workflow file: %w", err)
		}
		for _, d := range extra {
			defs[d.Name] = d
		}
	}

	for _, d := range defs {
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	return defs, nil
}
