package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateWaitSeconds(t *testing.T) {
	tests := []struct {
		name       string
		viewer     int
		nowServing int
		avg        float64
		want       int
	}{
		{
			name:       "three tickets ahead",
			viewer:     10,
			nowServing: 7,
			avg:        30,
			want:       90,
		},
		{
			name:       "already called",
			viewer:     7,
			nowServing: 7,
			avg:        30,
			want:       0,
		},
		{
			name:       "behind the serving token",
			viewer:     5,
			nowServing: 7,
			avg:        30,
			want:       0,
		},
		{
			name:       "no samples yet",
			viewer:     12,
			nowServing: 3,
			avg:        0,
			want:       0,
		},
		{
			name:       "fractional average rounds",
			viewer:     8,
			nowServing: 7,
			avg:        2.5,
			want:       3,
		},
		{
			name:       "fractional average rounds down",
			viewer:     9,
			nowServing: 7,
			avg:        2.2,
			want:       4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateWaitSeconds(tt.viewer, tt.nowServing, tt.avg)
			assert.Equal(t, tt.want, got)
		})
	}
}
