// Package drivers is a convenience package that registers all built-in
// storage drivers. Import it with a blank identifier to make all drivers
// available:
//
//	import _ "github.com/nuln/safebox/drivers"
package drivers

import (
	"github.com/nuln/safebox"
	_ "github.com/nuln/safebox/driver/badger"
	_ "github.com/nuln/safebox/driver/bolt"
	_ "github.com/nuln/safebox/driver/local"
	_ "github.com/nuln/safebox/driver/memory"
	_ "github.com/nuln/safebox/driver/minio"
	_ "github.com/nuln/safebox/driver/rclone"
	_ "github.com/nuln/safebox/driver/sharded"
)

// Init ensures all built-in drivers are registered.
// This is called automatically by importing the package.
func Init() {}

// List returns a list of all registered storage drivers.
func List() []string {
	return safebox.Drivers()
}
