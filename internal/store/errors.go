package store

import "fmt"

// CorruptStoreError indicates persisted data exists but cannot be parsed
// into the store schema. The file on disk is left untouched.
type CorruptStoreError struct {
	Path string
	Err  error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("corrupt store %s: %v", e.Path, e.Err)
}

func (e *CorruptStoreError) Unwrap() error { return e.Err }

// UnsupportedSchemaError indicates the on-disk schema version is newer than
// this build understands.
type UnsupportedSchemaError struct {
	Path    string
	Found   int
	Current int
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("store %s has schema version %d, newer than supported version %d",
		e.Path, e.Found, e.Current)
}

// StoreWriteError indicates a save failed. The previously persisted state
// remains valid because writes go to a temp file first.
type StoreWriteError struct {
	Path string
	Err  error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to write store %s: %v", e.Path, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }
