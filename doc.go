// Package safebox stores files reliably on storage that may fail or corrupt
// writes, such as flash filesystems on small devices.
//
// A [Manipulator] applies a durability [Mode] on top of a [Driver]:
//
//   - ModePlain writes files as-is and retries failed writes.
//   - ModeHashVerified stores each logical file as a data file (".d") and a
//     hash file (".m"). Every save is verified by reading the hash back, and
//     every load recomputes the hash and refuses mismatching content.
//   - ModeHashVerifiedWithBackup is reserved and returns ErrUnimplemented.
//
// Drivers register themselves by name, like database/sql drivers.
//
// # Supported Drivers
//
//   - local   — Local filesystem via afero (import _ "github.com/nuln/safebox/driver/local")
//   - memory  — In-memory map (import _ "github.com/nuln/safebox/driver/memory")
//   - bolt    — Single bbolt database file (import _ "github.com/nuln/safebox/driver/bolt")
//   - badger  — BadgerDB, on disk or in memory (import _ "github.com/nuln/safebox/driver/badger")
//   - sharded — Content-addressed chunked storage (import _ "github.com/nuln/safebox/driver/sharded")
//   - rclone  — Any rclone-supported remote (import _ "github.com/nuln/safebox/driver/rclone")
//   - minio   — MinIO or S3-compatible bucket (import _ "github.com/nuln/safebox/driver/minio")
//
// # Quick Start
//
//	import (
//	    "github.com/nuln/safebox"
//	    _ "github.com/nuln/safebox/driver/local"
//	)
//
//	box, err := safebox.Open(ctx, &safebox.Config{
//	    Type:     "local",
//	    Mode:     safebox.ModeHashVerified,
//	    BasePath: "./data",
//	})
//	defer box.Close()
//	err = box.Save(ctx, "settings", data)
//
// # Import All Drivers
//
//	import _ "github.com/nuln/safebox/drivers"
package safebox
