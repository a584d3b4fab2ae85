package influxdb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/gray-logic-clientwrap/internal/infrastructure/config"
)

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 500, 2, 500, 2000},
		{"zero takes defaults", 0, 0, 100, 10000},
		{"negative takes defaults", -1, -5, 100, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			assert.Equal(t, tt.wantBatch, opts.BatchSize())
			assert.Equal(t, tt.wantFlush, opts.FlushInterval(), "flush interval is in milliseconds")
		})
	}
}
