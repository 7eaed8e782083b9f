package disk

import "testing"

// TestingNewFileManager initializes the disk manager with file storage under
// a temporary directory which is removed after the test is completed.
func TestingNewFileManager(t *testing.T) (*Manager, error) {
	return NewManager(t.TempDir())
}

// TestingNewMemManager initializes the disk manager with in-memory storage
// instead of file storage. This prevents unnecessary disk I/O in test.
func TestingNewMemManager() *Manager {
	return NewMemManager()
}
