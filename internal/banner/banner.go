// Package banner renders the startup banner.
package banner

import "fmt"

const art = `      _
  ___| |_   _
 / __| | | | |
 \__ \ | |_| |
 |___/_|\__,_|
`

// Banner returns the startup banner with the version stamped in.
func Banner(version string) string {
	return fmt.Sprintf("%s  spoken language understanding · %s\n\n", art, version)
}
