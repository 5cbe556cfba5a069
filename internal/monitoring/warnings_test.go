package monitoring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnings_TextOrderAndNumbering(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	SetLogger(nil)

	var w Warnings
	assert.Equal(t, "", w.Text())

	w.Add("first")
	w.Addf("trend missing for %s at k=%d", "vp", 3)
	w.Add("   ")

	require.Equal(t, 2, w.Len())
	assert.Equal(t, "  1: first\n  2: trend missing for vp at k=3\n", w.Text())
}

func TestWarnings_ConcurrentAdd(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()
	SetLogger(nil)

	var w Warnings
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w.Addf("warning %d", i)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, w.Len())
	assert.Len(t, w.Items(), 50)
}
