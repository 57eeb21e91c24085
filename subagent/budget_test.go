package subagent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourceBudget_Deduct(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		deduct    int
		want      int
		wantErr   error
	}{
		{"partial", 100, 40, 60, nil},
		{"exact", 100, 100, 0, nil},
		{"zero", 10, 0, 10, nil},
		{"over", 10, 11, 10, ErrInsufficientBudget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := ResourceBudget{MaxTokens: 100, RemainingTokens: tt.remaining}
			got, err := b.Deduct(tt.deduct)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got.RemainingTokens)
			assert.Equal(t, tt.remaining, b.RemainingTokens)
		})
	}
}

func TestResourceBudget_NegativeDeduct(t *testing.T) {
	b := NewResourceBudget(5)
	got, err := b.Deduct(-1)
	require.Error(t, err)
	assert.Equal(t, b, got)
}

func TestResourceBudget_Used(t *testing.T) {
	b, err := NewResourceBudget(50).Deduct(20)
	require.NoError(t, err)
	assert.Equal(t, 20, b.UsedTokens())
	assert.False(t, b.Exhausted())
}
