package comm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodicRank(t *testing.T) {
	dims := [3]int{2, 3, 1}
	assert.Equal(t, 0, PeriodicRank(dims, [3]int{0, 0, 0}))
	assert.Equal(t, 1, PeriodicRank(dims, [3]int{1, 0, 0}))
	assert.Equal(t, 2, PeriodicRank(dims, [3]int{0, 1, 0}))
	// periodic folding in every dimension
	assert.Equal(t, 1, PeriodicRank(dims, [3]int{-1, 0, 0}))
	assert.Equal(t, 0, PeriodicRank(dims, [3]int{2, 3, 1}))

	for r := 0; r < 6; r++ {
		assert.Equal(t, r, PeriodicRank(dims, CoordsOf(dims, r)))
	}
}

func TestInProc_SendRecv(t *testing.T) {
	comms := NewInProcWorld([3]int{2, 1, 1})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := comms[0].Isend(1, 7, []byte("payload"))
		assert.NoError(t, err)
	}()
	var got []byte
	go func() {
		defer wg.Done()
		buf := make([]byte, 16)
		req, err := comms[1].Irecv(0, 7, buf)
		assert.NoError(t, err)
		n, err := req.Wait()
		assert.NoError(t, err)
		got = buf[:n]
	}()
	wg.Wait()
	assert.Equal(t, "payload", string(got))
}

func TestInProc_TagsDoNotCrossMatch(t *testing.T) {
	comms := NewInProcWorld([3]int{2, 1, 1})

	_, err := comms[0].Isend(1, 1, []byte{1})
	require.NoError(t, err)
	_, err = comms[0].Isend(1, 2, []byte{2})
	require.NoError(t, err)

	buf2 := make([]byte, 1)
	req2, err := comms[1].Irecv(0, 2, buf2)
	require.NoError(t, err)
	n, err := req2.Wait()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(2), buf2[0])

	buf1 := make([]byte, 1)
	req1, err := comms[1].Irecv(0, 1, buf1)
	require.NoError(t, err)
	_, err = req1.Wait()
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf1[0])
}

func TestInProc_SelfSend(t *testing.T) {
	comms := NewInProcWorld([3]int{1, 1, 1})
	_, err := comms[0].Isend(0, 3, []byte{42})
	require.NoError(t, err)
	buf := make([]byte, 1)
	req, err := comms[0].Irecv(0, 3, buf)
	require.NoError(t, err)
	_, err = req.Wait()
	require.NoError(t, err)
	assert.Equal(t, byte(42), buf[0])
}

func TestInProc_AllreduceSum(t *testing.T) {
	comms := NewInProcWorld([3]int{2, 2, 1})

	var wg sync.WaitGroup
	results := make([][]float64, 4)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			out, err := comms[r].AllreduceSum([]float64{1, float64(r)})
			assert.NoError(t, err)
			results[r] = out
		}(r)
	}
	wg.Wait()

	for r := 0; r < 4; r++ {
		assert.Equal(t, []float64{4, 6}, results[r])
	}
}

func TestSingle_NoTraffic(t *testing.T) {
	c := NewSingle()
	assert.Equal(t, 1, c.Size())
	_, err := c.Isend(0, 0, nil)
	assert.Error(t, err)
	_, err = c.Irecv(0, 0, nil)
	assert.Error(t, err)
	out, err := c.AllreduceSum([]float64{2.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5}, out)
}
