package atomicx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInt64ConcurrentAdd(t *testing.T) {
	v := NewInt64(10)
	wg := &sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1610), v.Load())
}

func TestInt32(t *testing.T) {
	v := NewInt32(3)
	require.Equal(t, int32(5), v.Add(2))
	require.Equal(t, int32(5), v.Swap(0))
	require.Equal(t, int32(0), v.Load())
}

func TestBool(t *testing.T) {
	b := NewBool(true)
	require.True(t, b.Load())
	b.Store(false)
	require.False(t, b.Load())
	b.Store(true)
	require.True(t, b.Load())
}
