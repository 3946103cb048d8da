package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/plate"
	"github.com/xraph/plate/store"
	"github.com/xraph/plate/store/memory"
	"github.com/xraph/plate/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestClosed(t *testing.T) {
	s := memory.New()
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())

	assert.ErrorIs(t, s.Ping(context.Background()), plate.ErrStoreClosed)
	err := s.RunInTx(context.Background(), func(context.Context, store.Tx) error { return nil })
	assert.ErrorIs(t, err, plate.ErrStoreClosed)
}
