package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBootstrapStatus_String verifies that BootstrapStatus values produce
// the expected string representations for CLI output and JSON serialization.
func TestBootstrapStatus_String(t *testing.T) {
	tests := []struct {
		status   BootstrapStatus
		expected string
	}{
		{StatusBuilt, "built"},
		{StatusRunning, "running"},
		{StatusStopped, "stopped"},
		{StatusExited, "exited"},
		{StatusUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.String())
		})
	}
}

// TestBootstrapStatus_IsValid checks that only defined status values pass validation.
func TestBootstrapStatus_IsValid(t *testing.T) {
	assert.True(t, StatusBuilt.IsValid())
	assert.True(t, StatusRunning.IsValid())
	assert.True(t, StatusStopped.IsValid())
	assert.True(t, StatusExited.IsValid())
	assert.True(t, StatusUnknown.IsValid())
	assert.False(t, BootstrapStatus("invalid").IsValid())
	assert.False(t, BootstrapStatus("").IsValid())
}

// TestParseBootstrapStatus verifies string-to-status conversion,
// including case normalization and error cases.
func TestParseBootstrapStatus(t *testing.T) {
	tests := []struct {
		input    string
		expected BootstrapStatus
		hasError bool
	}{
		{"built", StatusBuilt, false},
		{"running", StatusRunning, false},
		{"stopped", StatusStopped, false},
		{"exited", StatusExited, false},
		{"Running", StatusRunning, false}, // case insensitive
		{"EXITED", StatusExited, false},   // case insensitive
		{"invalid", "", true},             // unknown value
		{"", "", true},                    // empty string
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseBootstrapStatus(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestDependencyManager_String verifies string representation of all managers.
func TestDependencyManager_String(t *testing.T) {
	tests := []struct {
		manager  DependencyManager
		expected string
	}{
		{ManagerPoetry, "poetry"},
		{ManagerPip, "pip"},
		{ManagerNpm, "npm"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.manager.String())
		})
	}
}

// TestDependencyManager_IsValid checks that only supported managers pass validation.
func TestDependencyManager_IsValid(t *testing.T) {
	assert.True(t, ManagerPoetry.IsValid())
	assert.True(t, ManagerPip.IsValid())
	assert.True(t, ManagerNpm.IsValid())
	assert.False(t, DependencyManager("cargo").IsValid())
	assert.False(t, DependencyManager("").IsValid())
}

// TestParseDependencyManager verifies string-to-manager conversion.
func TestParseDependencyManager(t *testing.T) {
	tests := []struct {
		input    string
		expected DependencyManager
		hasError bool
	}{
		{"poetry", ManagerPoetry, false},
		{"pip", ManagerPip, false},
		{"npm", ManagerNpm, false},
		{"Poetry", ManagerPoetry, false}, // case insensitive
		{"NPM", ManagerNpm, false},       // case insensitive
		{"cargo", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDependencyManager(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestFinding_String verifies the human-readable finding format used
// in validation reports.
func TestFinding_String(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		f := Finding{
			Severity: SeverityWarning,
			Code:     "port-mismatch",
			Field:    "expose",
			Message:  "documented port 8000 differs from bound port 8001",
		}
		assert.Equal(t, "warning port-mismatch expose: documented port 8000 differs from bound port 8001", f.String())
	})

	t.Run("without field", func(t *testing.T) {
		f := Finding{
			Severity: SeverityError,
			Code:     "empty-command",
			Message:  "command.argv must not be empty",
		}
		assert.Equal(t, "error empty-command: command.argv must not be empty", f.String())
	})
}

// TestFinding_IsError verifies severity classification.
func TestFinding_IsError(t *testing.T) {
	assert.True(t, Finding{Severity: SeverityError}.IsError())
	assert.False(t, Finding{Severity: SeverityWarning}.IsError())
}

// TestHasErrors checks error detection across a findings slice:
// warnings alone never fail validation, a single error always does.
func TestHasErrors(t *testing.T) {
	t.Run("empty findings", func(t *testing.T) {
		assert.False(t, HasErrors(nil))
		assert.False(t, HasErrors([]Finding{}))
	})

	t.Run("warnings only", func(t *testing.T) {
		findings := []Finding{
			{Severity: SeverityWarning, Code: "port-mismatch"},
			{Severity: SeverityWarning, Code: "unknown-field"},
		}
		assert.False(t, HasErrors(findings))
	})

	t.Run("mixed severities", func(t *testing.T) {
		findings := []Finding{
			{Severity: SeverityWarning, Code: "port-mismatch"},
			{Severity: SeverityError, Code: "empty-base-image"},
		}
		assert.True(t, HasErrors(findings))
	})
}

// TestCountWarnings verifies the warning counter used for summary lines.
func TestCountWarnings(t *testing.T) {
	findings := []Finding{
		{Severity: SeverityWarning, Code: "port-mismatch"},
		{Severity: SeverityError, Code: "empty-base-image"},
		{Severity: SeverityWarning, Code: "unknown-field"},
	}
	assert.Equal(t, 2, CountWarnings(findings))
	assert.Equal(t, 0, CountWarnings(nil))
}

// TestValidateName checks app name validation rules:
// - Must not be empty
// - Alphanumeric + hyphens only
// - Must start and end with alphanumeric
// - Max 63 characters
func TestValidateName(t *testing.T) {
	tests := []struct {
		name     string
		hasError bool
	}{
		{"order-api", false},    // valid: alphanumeric with hyphen
		{"a", false},            // valid: single character
		{"order-api-v2", false}, // valid: multiple hyphens
		{"abc123", false},       // valid: alphanumeric
		{"", true},              // invalid: empty
		{"-order", true},        // invalid: starts with hyphen
		{"order-", true},        // invalid: ends with hyphen
		{"order api", true},     // invalid: space
		{"order_api", true},     // invalid: underscore
		{"order.api", true},     // invalid: dot
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.name)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("name longer than 63 characters", func(t *testing.T) {
		long := make([]byte, 64)
		for i := range long {
			long[i] = 'a'
		}
		assert.Error(t, ValidateName(string(long)))
	})
}

// TestPortSpec_Validate checks individual port spec validation:
// - ContainerPort range: 1-65535
// - HostPort: 0 (unpublished) or 1-65535
// - Protocol must be tcp or udp
func TestPortSpec_Validate(t *testing.T) {
	tests := []struct {
		name     string
		spec     PortSpec
		hasError bool
	}{
		{
			name:     "valid tcp spec",
			spec:     PortSpec{ContainerPort: 8001, HostPort: 8001, Protocol: "tcp"},
			hasError: false,
		},
		{
			name:     "valid udp spec",
			spec:     PortSpec{ContainerPort: 53, HostPort: 10053, Protocol: "udp"},
			hasError: false,
		},
		{
			name:     "defaults empty protocol to tcp",
			spec:     PortSpec{ContainerPort: 8001, HostPort: 8001, Protocol: ""},
			hasError: false,
		},
		{
			name:     "unpublished port allowed",
			spec:     PortSpec{ContainerPort: 8000, HostPort: 0, Protocol: "tcp"},
			hasError: false,
		},
		{
			name:     "container port too low",
			spec:     PortSpec{ContainerPort: 0, HostPort: 8001, Protocol: "tcp"},
			hasError: true,
		},
		{
			name:     "container port too high",
			spec:     PortSpec{ContainerPort: 70000, HostPort: 8001, Protocol: "tcp"},
			hasError: true,
		},
		{
			name:     "host port too high",
			spec:     PortSpec{ContainerPort: 8001, HostPort: 70000, Protocol: "tcp"},
			hasError: true,
		},
		{
			name:     "invalid protocol",
			spec:     PortSpec{ContainerPort: 8001, HostPort: 8001, Protocol: "sctp"},
			hasError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestPortSpec_String verifies the human-readable output format
// used in CLI table displays.
func TestPortSpec_String(t *testing.T) {
	t.Run("published port", func(t *testing.T) {
		spec := PortSpec{ContainerPort: 8001, HostPort: 8001, Protocol: "tcp"}
		assert.Equal(t, "8001:8001/tcp", spec.String())
	})

	t.Run("unpublished port", func(t *testing.T) {
		spec := PortSpec{ContainerPort: 8000, Protocol: "tcp"}
		assert.Equal(t, "8000/tcp", spec.String())
	})

	t.Run("empty protocol defaults to tcp", func(t *testing.T) {
		spec := PortSpec{ContainerPort: 8001, HostPort: 18001}
		assert.Equal(t, "18001:8001/tcp", spec.String())
	})
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitDockerUnavailable, "Docker daemon is not running")
		assert.Equal(t, ExitDockerUnavailable, err.Code)
		assert.Equal(t, "Docker daemon is not running", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitDockerUnavailable, "Docker daemon is not running", inner)
		assert.Equal(t, ExitDockerUnavailable, err.Code)
		assert.Contains(t, err.Error(), "connection refused")
		assert.Equal(t, inner, err.Unwrap())
	})

	// Verify errors.Is works with unwrapped errors (Go 1.13+ error chain).
	t.Run("errors.Is chain", func(t *testing.T) {
		inner := errors.New("connection refused")
		err := WrapCLIError(ExitBuildFailed, "image build failed", inner)
		assert.True(t, errors.Is(err, inner))
	})
}
