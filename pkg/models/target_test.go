package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		target  Target
		wantErr bool
	}{
		{
			name: "valid https target",
			target: Target{
				Name:           "orders-webhook",
				URL:            "https://example.com/hooks/orders",
				Method:         "POST",
				TimeoutSeconds: 30,
			},
			wantErr: false,
		},
		{
			name: "valid http target",
			target: Target{
				Name:           "local",
				URL:            "http://localhost:9000/ping",
				Method:         "GET",
				TimeoutSeconds: 5,
			},
			wantErr: false,
		},
		{
			name: "relative url",
			target: Target{
				Name:           "bad",
				URL:            "/hooks/orders",
				Method:         "POST",
				TimeoutSeconds: 30,
			},
			wantErr: true,
		},
		{
			name: "unsupported scheme",
			target: Target{
				Name:           "bad",
				URL:            "ftp://example.com/file",
				Method:         "GET",
				TimeoutSeconds: 30,
			},
			wantErr: true,
		},
		{
			name: "missing host",
			target: Target{
				Name:           "bad",
				URL:            "https://",
				Method:         "GET",
				TimeoutSeconds: 30,
			},
			wantErr: true,
		},
		{
			name: "zero timeout",
			target: Target{
				Name:           "bad",
				URL:            "https://example.com",
				Method:         "GET",
				TimeoutSeconds: 0,
			},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.target.Validate()

			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidTarget)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTarget_Timeout(t *testing.T) {
	target := Target{TimeoutSeconds: 45}

	assert.Equal(t, "45s", target.Timeout().String())
}
