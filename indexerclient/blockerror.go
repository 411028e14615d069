package indexerclient

import (
	"strconv"
	"strings"
)

// BlockError is the block-lag feedback parsed out of an indexer's error
// string. Either field may be absent when the string matches the
// overall "block" error shape but lacks the specific sub-phrase.
type BlockError struct {
	Unresolved     *uint64
	ReportedStatus *uint64
}

// CheckBlockError extracts block-lag information from an indexer error
// string. It returns nil when the string doesn't look like a block
// error at all (the substring "Failed to decode `block" is absent);
// otherwise it returns a BlockError with whichever of Unresolved /
// ReportedStatus it could parse out by prefix scan.
func CheckBlockError(errString string) *BlockError {
	if !strings.Contains(errString, "Failed to decode `block") {
		return nil
	}
	return &BlockError{
		Unresolved:     extractBlockNumber(errString, "and data for block number "),
		ReportedStatus: extractBlockNumber(errString, "has only indexed up to block number "),
	}
}

func extractBlockNumber(s, prefix string) *uint64 {
	idx := strings.Index(s, prefix)
	if idx < 0 {
		return nil
	}
	rest := s[idx+len(prefix):]
	end := strings.IndexByte(rest, ' ')
	if end < 0 {
		// Mirrors the original's split_once(' '): a number with no
		// trailing space is not a match at all, not a match on the
		// whole remainder.
		return nil
	}
	rest = rest[:end]
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}
