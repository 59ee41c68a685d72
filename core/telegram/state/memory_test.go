package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	Step  string
	Count int
}

func TestStoreUpdateCreatesAndKeepsChanges(t *testing.T) {
	s := NewStore[testSession]()
	require.Equal(t, testSession{}, s.Get(1))

	err := s.Update(1, func(sess *testSession) error {
		sess.Step = "amount"
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, "amount", s.Get(1).Step)
	assert.Equal(t, 1, s.Len())

	s.Clear(1)
	assert.Equal(t, testSession{}, s.Get(1))
}

func TestStoreSerializesSameKey(t *testing.T) {
	s := NewStore[testSession]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Update(7, func(sess *testSession) error {
				v := sess.Count
				time.Sleep(time.Microsecond)
				sess.Count = v + 1
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Get(7).Count)
}

func TestStoreKeysDoNotBlockEachOther(t *testing.T) {
	s := NewStore[testSession]()
	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Update(1, func(*testSession) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		_ = s.Update(2, func(sess *testSession) error {
			sess.Step = "free"
			return nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("update for another key was blocked")
	}
	close(release)
}
