package hardwareconfig

import (
	_ "embed"
)

// Embedded clock tables baked into the binary.
// Add new SoC models here as needed.

//go:embed hardware-vendor/ingenic/x1830/clocks.yaml
var ingenicX1830ClocksYAML []byte

// embeddedTables maps hwDefPath -> raw YAML contents.
// Example key: "ingenic/x1830"
var embeddedTables = map[string][]byte{
	"ingenic/x1830": ingenicX1830ClocksYAML,
}
