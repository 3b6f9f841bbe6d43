package config

import (
	"fmt"
	"os"
)

// Template returns a commented relayd config that loads to Default().
func Template() string {
	return relayTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(relayTemplate), 0o600)
}

const relayTemplate = `# relayd configuration

# id names this relay in logs and metrics; leave empty to generate one.
id = ""
# app selects the bundled application: chat | echo
app = "chat"
# duplicate_policy for a connect on a live session id: overwrite | reject
duplicate_policy = "overwrite"

[bridge]
# network: tcp | unix | udp
network = "tcp"
# mode: listen (wait for the bridge) | dial (connect to the bridge)
mode = "listen"
address = "127.0.0.1:5000"
# udp only: bridge address; empty learns it from the first datagram
peer = ""
connect_timeout = "5s"
# dial mode only; 0 retries forever
max_connect_attempts = 0
max_message_bytes = 8388608

[bridge.tls]
# tcp only. listen mode serves cert_file/key_file; dial mode verifies the
# bridge against ca_file. mutual also requires the other side's certificate.
enabled = false
mutual = false
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""
insecure_skip_verify = false

[admin]
# empty addr disables the admin HTTP server
addr = "127.0.0.1:5080"
cors_origins = ["http://localhost:3000"]
# bearer token for /sessions; empty leaves them open
token = ""

[log]
level = "info"
# format: console | json
format = "console"
# optional rotated JSON log file
file = ""
max_size_mb = 50
max_backups = 3
max_age_days = 14
compress = false
`
