package reference

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGenerator_RejectsBadInput(t *testing.T) {
	for _, prefix := range []string{"", "Palmera", "has space", "under_score", strings.Repeat("a", 33)} {
		_, err := NewGenerator(prefix, 1)
		assert.Error(t, err, prefix)
	}
	_, err := NewGenerator("palmera", 4096)
	assert.Error(t, err)
}

func TestGenerator_Format(t *testing.T) {
	g, err := NewGenerator("palmera", 7)
	require.NoError(t, err)
	assert.Equal(t, "palmera", g.Prefix())

	charge := regexp.MustCompile(`^palmera_(\d+)_[0-9a-z]+$`)
	mobile := regexp.MustCompile(`^palmera_mobile_(\d+)_[0-9a-z]+$`)

	ref := g.Charge()
	m := charge.FindStringSubmatch(ref)
	require.NotNil(t, m, ref)
	millis, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), time.UnixMilli(millis), 5*time.Second)

	assert.Regexp(t, mobile, g.Mobile())
}

func TestGenerator_UniqueUnderConcurrency(t *testing.T) {
	g, err := NewGenerator("palmera", 1)
	require.NoError(t, err)

	const workers, perWorker = 16, 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.Charge())
			}
			mu.Lock()
			for _, ref := range local {
				seen[ref] = struct{}{}
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}
