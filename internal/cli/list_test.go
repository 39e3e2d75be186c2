package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmr-tortoise/gangway/internal/model"
)

func TestFormatPorts(t *testing.T) {
	tests := []struct {
		name       string
		containers []model.ContainerInfo
		expected   string
	}{
		{
			name:       "no containers",
			containers: nil,
			expected:   "-",
		},
		{
			name: "unpublished ports only",
			containers: []model.ContainerInfo{
				{Ports: []model.PortSpec{{ContainerPort: 8001, Protocol: "tcp"}}},
			},
			expected: "-",
		},
		{
			name: "single published port",
			containers: []model.ContainerInfo{
				{Ports: []model.PortSpec{{ContainerPort: 8001, HostPort: 8001, Protocol: "tcp"}}},
			},
			expected: "8001",
		},
		{
			name: "multiple containers sorted and deduplicated",
			containers: []model.ContainerInfo{
				{Ports: []model.PortSpec{{ContainerPort: 9000, HostPort: 9002, Protocol: "tcp"}}},
				{Ports: []model.PortSpec{
					{ContainerPort: 8001, HostPort: 8001, Protocol: "tcp"},
					{ContainerPort: 8001, HostPort: 9002, Protocol: "tcp"},
				}},
			},
			expected: "8001,9002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPorts(tt.containers))
		})
	}
}

func TestTakenHostPorts(t *testing.T) {
	containers := []model.ContainerInfo{
		{Ports: []model.PortSpec{
			{ContainerPort: 8001, HostPort: 8005, Protocol: "tcp"},
			{ContainerPort: 9090, HostPort: 0, Protocol: "tcp"},
		}},
		{Ports: []model.PortSpec{
			{ContainerPort: 8001, HostPort: 8001, Protocol: "tcp"},
			{ContainerPort: 8001, HostPort: 8005, Protocol: "tcp"},
		}},
	}

	taken := takenHostPorts(containers)

	assert.Equal(t, []int{8001, 8005}, taken, "sorted, deduplicated, unpublished dropped")
	assert.Nil(t, takenHostPorts(nil))
}

func TestFormatAge(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name     string
		t        time.Time
		expected string
	}{
		{"zero time", time.Time{}, "-"},
		{"future timestamp", now.Add(time.Hour), "-"},
		{"seconds", now.Add(-30 * time.Second), "30s"},
		{"minutes", now.Add(-5 * time.Minute), "5m"},
		{"hours", now.Add(-3 * time.Hour), "3h"},
		{"days", now.Add(-49 * time.Hour), "2d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatAge(tt.t))
		})
	}
}
