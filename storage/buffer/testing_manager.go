package buffer

import (
	"github.com/pkg/errors"

	"github.com/burrowdb/burrow/storage/disk"
)

// TestingNewManager initializes a buffer pool manager backed by the
// in-memory disk manager. the disk manager is also returned so the test can
// create files and check what reached "disk".
func TestingNewManager() (*Manager, *disk.Manager, error) {
	return TestingNewManagerWithConfig(DefaultConfig())
}

// TestingNewManagerWithBuffers initializes a buffer pool manager with a
// pool of exactly n buffers. small pools make eviction tests deterministic.
func TestingNewManagerWithBuffers(n int) (*Manager, *disk.Manager, error) {
	conf := DefaultConfig()
	conf.NumBuffers = n
	return TestingNewManagerWithConfig(conf)
}

// TestingNewManagerWithConfig initializes a buffer pool manager with the
// given configuration, backed by the in-memory disk manager
func TestingNewManagerWithConfig(conf Config) (*Manager, *disk.Manager, error) {
	dm := disk.TestingNewMemManager()
	m, err := NewManager(dm, conf)
	if err != nil {
		return nil, nil, errors.Wrap(err, "NewManager failed")
	}
	return m, dm, nil
}
