// Package scripts embeds the built-in check scripts. The reconciler command
// runs them unless a scripts directory is configured.
package scripts

import "embed"

// FS holds checks/*.risor.
//
//go:embed checks/*.risor
var FS embed.FS
