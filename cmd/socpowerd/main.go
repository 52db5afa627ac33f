// socpowerd is the SoC power policy daemon. It arbitrates sustained
// performance, VR and interaction hints into resource locks and exports the
// platform and WLAN power statistics.
//
// Usage:
//
//	socpowerd run [--config /etc/socpowerd.toml]
//	socpowerd stats [platform|wlan] [--json]
//	socpowerd version
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
