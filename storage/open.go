package storage

import "fmt"

// Open returns the database for the named engine: "memory", "leveldb" or
// "bolt". Persistent engines create path when needed.
func Open(engine, path string) (Database, error) {
	switch engine {
	case "memory", "":
		return NewMemDB(), nil
	case "leveldb":
		return NewLevelDB(path)
	case "bolt":
		return NewBoltDB(path)
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", engine)
	}
}
