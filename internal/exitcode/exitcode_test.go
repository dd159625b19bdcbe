package exitcode

import (
	"fmt"
	"testing"

	"github.com/drover-dev/drover/internal/errors"
)

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"plain error", fmt.Errorf("boom"), GeneralError},
		{"corrupt state", errors.NewStateCorruptError("features.yaml", nil), CorruptState},
		{"environment", errors.NewEnvironmentError("init script failed", nil), EnvironmentError},
		{"transient leaks as general", errors.New(errors.ErrCodeAgentTimeout, "t").WithClass(errors.ClassTransient), GeneralError},
		{
			"wrapped environment",
			fmt.Errorf("run aborted: %w", errors.NewEnvironmentError("init script failed", nil)),
			EnvironmentError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.want {
				t.Errorf("DetermineExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
