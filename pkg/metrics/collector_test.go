package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/davidwed/TsunamiUDP/pkg/stats"
)

func TestCollectorExportsUpdatedSnapshot(t *testing.T) {
	c := NewCollector()
	c.Update("xfer-1", stats.Snapshot{
		TransmitRate:   1_000_000,
		RetransmitRate: 250,
		TotalBlocks:    42,
		UDPErrors:      3,
	})

	assert.Equal(t, 1, testutil.CollectAndCount(c)/4) // 4 metrics per tracked transfer
}

func TestCollectorStopsExportingAfterRemove(t *testing.T) {
	c := NewCollector()
	c.Update("xfer-1", stats.Snapshot{TotalBlocks: 1})
	assert.Equal(t, 4, testutil.CollectAndCount(c))

	c.Remove("xfer-1")
	assert.Equal(t, 0, testutil.CollectAndCount(c))
}
