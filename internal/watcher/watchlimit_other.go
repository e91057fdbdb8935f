//go:build !linux

package watcher

func watchLimitHint(err error) error { return err }
