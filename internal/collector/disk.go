// Disk usage collector: publishes per-mount usage for local filesystems.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// skippedFSTypes are virtual, system and remote filesystems that do not
// represent local storage.
var skippedFSTypes = map[string]bool{
	"autofs": true, "binfmt_misc": true, "bpf": true, "cgroup": true,
	"cgroup2": true, "configfs": true, "debugfs": true, "devfs": true,
	"devtmpfs": true, "efivarfs": true, "fusectl": true, "hugetlbfs": true,
	"mqueue": true, "nsfs": true, "nullfs": true, "overlay": true,
	"proc": true, "procfs": true, "pstore": true, "ramfs": true,
	"securityfs": true, "squashfs": true, "sysfs": true, "tmpfs": true,
	"tracefs": true, "fuse.snapfuse": true,

	"9p": true, "afs": true, "ceph": true, "cifs": true, "davfs2": true,
	"fuse.sshfs": true, "glusterfs": true, "lustre": true, "nfs": true,
	"nfs4": true, "smbfs": true,
}

// systemMountPrefixes are OS-internal mount points not worth reporting.
var systemMountPrefixes = []string{
	"/System/Volumes/",
	"/private/var/vm",
}

func isSystemMount(mount string) bool {
	for _, prefix := range systemMountPrefixes {
		if strings.HasPrefix(mount, prefix) {
			return true
		}
	}
	return false
}

// DiskCollector publishes disk.total, disk.used and disk.free per mount.
type DiskCollector struct {
	Base
}

// NewDiskCollector creates a new disk collector.
func NewDiskCollector(name string, overrides map[string]interface{}, env Env) (*DiskCollector, error) {
	c := &DiskCollector{}
	c.Base = newBase(name, c.DefaultConfig().With(overrides), env)
	return c, nil
}

// DefaultConfig returns the disk defaults.
func (c *DiskCollector) DefaultConfig() Options {
	return defaultOptions(nil)
}

// Collect reads usage for every mounted partition once.
func (c *DiskCollector) Collect(ctx context.Context) []metric.Metric {
	return c.settle(ctx, c.Run)
}

// Run performs one pass and reports its outcome. Inaccessible partitions are
// skipped.
func (c *DiskCollector) Run(ctx context.Context) Outcome {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return Aborted(AccessError, "Failed to list partitions", errors.Wrap(err, "partitions"))
	}

	p := c.newPass()
	for _, part := range partitions {
		if skippedFSTypes[part.Fstype] || isSystemMount(part.Mountpoint) {
			continue
		}

		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			c.log.Debug("Skipping inaccessible partition",
				zap.String("mount", part.Mountpoint),
				zap.Error(err))
			continue
		}
		if usage.Total == 0 {
			continue
		}

		dims := map[string]string{"mount": part.Mountpoint, "fs": part.Fstype}
		p.publishMetric(metric.NewGauge("disk.total", float64(usage.Total)).WithDimensions(dims))
		p.publishMetric(metric.NewGauge("disk.used", float64(usage.Used)).WithDimensions(dims))
		p.publishMetric(metric.NewGauge("disk.free", float64(usage.Free)).WithDimensions(dims))
	}
	return p.success()
}
