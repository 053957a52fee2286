package wal

import (
	"time"

	"storage-engine/internal/common"
)

// SyncPolicy controls when an Append becomes durable.
type SyncPolicy int

const (
	// SyncAlways fsyncs after every append (highest durability, highest latency).
	SyncAlways SyncPolicy = iota
	// SyncGroup batches concurrent appends behind a shared periodic fsync.
	SyncGroup
	// SyncNever never explicitly fsyncs; durability is left to the OS page cache.
	SyncNever
)

// ParseSyncPolicy parses the AKIDB_WAL_SYNC environment value.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch s {
	case "always":
		return SyncAlways, nil
	case "group", "":
		return SyncGroup, nil
	case "never":
		return SyncNever, nil
	default:
		return SyncGroup, common.Validation("unknown wal sync policy %q", s)
	}
}

// Config configures a Manager's rotation and durability behavior.
type Config struct {
	Dir                 string
	SegmentSize         int64
	SegmentAge          time.Duration
	SyncPolicy          SyncPolicy
	GroupCommitInterval time.Duration
}

// DefaultConfig returns the default rotation thresholds: a 64 MiB or
// 5-minute segment, group-commit batching at 2 ms.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                 dir,
		SegmentSize:         64 << 20,
		SegmentAge:          5 * time.Minute,
		SyncPolicy:          SyncGroup,
		GroupCommitInterval: 2 * time.Millisecond,
	}
}
