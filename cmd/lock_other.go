//go:build !unix

package cmd

// Non-unix servers run as a single service instance; no lock is taken.
func acquireLock(dir string) (bool, error) { return true, nil }

func releaseLock() {}
