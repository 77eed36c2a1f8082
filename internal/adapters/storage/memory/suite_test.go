package memory

import (
	"testing"

	"clinic-appointments/internal/adapters/storage/storagetest"
)

func TestStore_Suite(t *testing.T) {
	storagetest.Run(t, NewStore())
}
