package models

import "errors"

// ErrNotFound is returned by repositories when a host record does not exist
var ErrNotFound = errors.New("record not found")

// ErrUnknownTrigger is returned for a trigger type outside the known set
var ErrUnknownTrigger = errors.New("unknown trigger type")
