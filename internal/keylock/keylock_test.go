package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestLock_SerializesSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	m := New()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("user-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, m.Len(), "entries are released once unused")
}

func TestLock_DistinctKeysIndependent(t *testing.T) {
	m := New()

	unlockA := m.Lock("a")
	unlockB := m.Lock("b")
	assert.Equal(t, 2, m.Len())

	unlockA()
	unlockB()
	assert.Zero(t, m.Len())
}
