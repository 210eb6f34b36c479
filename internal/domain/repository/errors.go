package repository

import "errors"

var (
	// ErrSessionNotFound is returned when an upload session cannot be found.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrDuplicateSession is returned when attempting to create a session that already exists.
	ErrDuplicateSession = errors.New("upload session already exists")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
