package memory

import (
	"testing"

	"softspace/internal/store"
	"softspace/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}
