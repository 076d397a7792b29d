package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "daemon":
		return daemonTemplate, nil
	case "ctl":
		return ctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const daemonTemplate = `name = "memdevd"
addr = ":9200"
cors_origins = ["http://localhost:3000"]
max_body_bytes = 1048576
shutdown_timeout = "5s"
auth_token = ""

[[devices]]
name = "my_device"
capacity = 1024

[log]
level = "info"
json = false
file = ""
rotate = false

[tls]
enabled = false
`

const ctlTemplate = `transport = "http"
addr = "http://localhost:9200"
device = "my_device"
path = "/dev/my_device"
timeout = "5s"
token = ""

[tls]
enabled = false
`
