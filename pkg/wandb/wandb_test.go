package wandb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeMetricNameReplacesNonAlnumWithUnderscore(t *testing.T) {
	assert.Equal(t, "benchctl_tx_pkts_per_sec", sanitizeMetricName("tx.pkts-per/sec"))
}

func TestSanitizeMetricNamePreservesAlreadyValidCharacters(t *testing.T) {
	assert.Equal(t, "benchctl_rx_bytes_total", sanitizeMetricName("rx_bytes_total"))
}
