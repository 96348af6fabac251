package threading

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForEach(t *testing.T) {
	tests := []struct {
		name     string
		items    []int
		failOn   map[int]bool
		wantIdx  []int
		wantRuns int32
	}{
		{name: "no items", items: nil},
		{name: "all succeed", items: []int{1, 2, 3, 4, 5, 6, 7, 8}, wantRuns: 8},
		{
			name:     "failures tagged and ordered",
			items:    []int{10, 11, 12, 13, 14},
			failOn:   map[int]bool{13: true, 11: true},
			wantIdx:  []int{1, 3},
			wantRuns: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			err := ForEach(context.Background(), tt.items, func(_ context.Context, v int) error {
				runs.Add(1)
				if tt.failOn[v] {
					return fmt.Errorf("item %d failed", v)
				}
				return nil
			}, WithThreads(2))

			require.Equal(t, tt.wantRuns, runs.Load())
			if len(tt.wantIdx) == 0 {
				require.NoError(t, err)
				return
			}

			joined, ok := err.(interface{ Unwrap() []error })
			require.True(t, ok, "expected a joined error, got %T", err)
			var idx []int
			for _, e := range joined.Unwrap() {
				i, ok := ExtractItemIndex(e)
				require.True(t, ok)
				idx = append(idx, i)
			}
			require.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestForEach_PanicsBecomeFaults(t *testing.T) {
	err := ForEach(context.Background(), []string{"a", "b"}, func(_ context.Context, s string) error {
		if s == "b" {
			panic("bad item")
		}
		return nil
	})
	require.ErrorIs(t, err, ErrItemPanicked)
}

func TestForEach_InvalidOptions(t *testing.T) {
	err := ForEach(context.Background(), []int{1}, func(context.Context, int) error { return nil }, WithThreads(0))
	require.ErrorIs(t, err, ErrInvalidConfig)

	require.ErrorIs(t, ForEach[int](context.Background(), []int{1}, nil), ErrNilWorkItem)
}

func TestForEach_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ForEach(ctx, []int{1, 2, 3}, func(context.Context, int) error { return nil })
	require.True(t, errors.Is(err, context.Canceled))
}
