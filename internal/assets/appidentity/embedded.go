package appidentityassets

import _ "embed"

// YAML mirrors `.fulmen/app.yaml` so the binary knows its identity when run
// outside the repository. Keep the two files identical.
//
//go:embed app.yaml
var YAML []byte
