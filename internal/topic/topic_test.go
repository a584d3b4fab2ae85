package topic

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"sensors/+", "sensors/42", true},
		{"sensors/+", "sensors/42/temp", false},
		{"sensors/+", "sensors", false},
		{"sensors/#", "sensors", true},
		{"sensors/#", "sensors/42/temp", true},
		{"#", "anything/at/all", true},
		{"+/+", "a/b", true},
		{"+/+", "a", false},
		{"sensors/42", "sensors/42", true},
		{"sensors/42", "sensors/43", false},
		{"#", "$SYS/broker/uptime", false},
		{"+/broker/uptime", "$SYS/broker/uptime", false},
		{"$SYS/#", "$SYS/broker/uptime", true},
		{"a/+/c", "a//c", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter+" vs "+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.filter, tt.name))
		})
	}
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("sensors/42"))
	assert.NoError(t, ValidateName("/leading/slash"))

	for _, bad := range []string{"", "sensors/+", "sensors/#", "a\x00b", string([]byte{0xff, 0xfe}), strings.Repeat("a", MaxLength+1)} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalid, "name %q", bad)
	}
}

func TestValidateFilter(t *testing.T) {
	for _, good := range []string{"sensors/+", "sensors/#", "#", "+", "+/+/#", "sensors/42"} {
		assert.NoError(t, ValidateFilter(good), "filter %q", good)
	}

	for _, bad := range []string{"", "sensors/#/x", "sensors/a+", "sensors/#a", "a\x00"} {
		assert.ErrorIs(t, ValidateFilter(bad), ErrInvalid, "filter %q", bad)
	}
}
