package downloader

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/icdl/internal/utils"
	"github.com/shirou/gopsutil/v3/disk"
)

// FreeSpaceFunc reports the free bytes of the volume holding dir
type FreeSpaceFunc func(ctx context.Context, dir string) (uint64, error)

// VolumeFreeSpace reads free space with gopsutil
func VolumeFreeSpace(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// checkFreeSpace fails when need bytes plus headroom do not fit. A volume
// whose usage cannot be read is not treated as full.
func (d *Downloader) checkFreeSpace(ctx context.Context, dir string, need int64) error {
	if d.freeSpace == nil || need <= 0 {
		return nil
	}
	free, err := d.freeSpace(ctx, dir)
	if err != nil {
		d.logger.Debug("Free space check skipped", logFields(dir, err)...)
		return nil
	}
	required := uint64(need) + utils.DiskSpaceHeadroom
	if free < required {
		return utils.NewCLIError(utils.ErrCodeInsufficientSpace,
			fmt.Sprintf("Not enough free space in %s: need %d bytes, %d available", dir, required, free)).
			WithContext("dir", dir).
			WithContext("required", required).
			WithContext("free", free).
			Err()
	}
	return nil
}
