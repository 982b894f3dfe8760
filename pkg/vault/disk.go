package vault

import (
	"fmt"
)

// Disk capacity thresholds
const (
	MinDiskSpaceBytes  = 1024 * 1024 // 1 MB minimum free space
	DiskWarningPercent = 90          // Warn when disk is 90% full
)

// DiskSpaceInfo contains disk usage information
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`     // Total disk space in bytes
	Free      uint64 `json:"free"`      // Free disk space in bytes
	Available uint64 `json:"available"` // Available to non-root users
	UsedPct   int    `json:"used_pct"`  // Percentage of disk used
}

// checkDiskSpaceForWrite verifies sufficient disk space before key files
// are written. A failed measurement is logged and does not block.
func (v *Vault) checkDiskSpaceForWrite(dataSize int) error {
	info, err := v.CheckDiskSpace()
	if err != nil {
		v.log.Warn().Err(err).Msg("Failed to check disk space")
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}

	if info.Available < required {
		return fmt.Errorf("%w: only %d KB available, need at least %d KB",
			ErrInsufficientDisk, info.Available/1024, required/1024)
	}

	if info.UsedPct >= DiskWarningPercent {
		v.log.Warn().Int("used_pct", info.UsedPct).Msg("Disk is nearly full, consider freeing space")
	}
	return nil
}
