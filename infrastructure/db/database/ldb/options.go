package ldb

import "github.com/syndtr/goleveldb/leveldb/opt"

// Options returns the leveldb options every consensus database is opened
// with. Receipts and state snapshots repeat a lot of structure so blocks are
// snappy compressed. It's a variable so tests can shrink the caches.
var Options = func() *opt.Options {
	return &opt.Options{
		Compression:            opt.SnappyCompression,
		BlockCacheCapacity:     32 * opt.MiB,
		WriteBuffer:            16 * opt.MiB,
		DisableSeeksCompaction: true,
	}
}
