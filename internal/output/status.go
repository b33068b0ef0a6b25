package output

import (
	"context"
	"fmt"
	"time"
)

// StatusBar calls printF every refreshRate until ctx is done.
func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

// PrettySamplerStatus formats the sampler throughput, the records lost by
// the kernel, and how full the user-space events buffer is.
func PrettySamplerStatus(rate, lost uint64, bufUtil int) string {
	return fmt.Sprintf("%-16s %-16s %-30s",
		fmt.Sprintf("Events/s: %4d", rate),
		fmt.Sprintf("Lost: %6d", lost),
		fmt.Sprintf("Events Buffer: [%s] %3d%%", ProgressBar(bufUtil, 10), bufUtil),
	)
}
