package events_test

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// subscriptions own goroutines; every test must release them
	goleak.VerifyTestMain(m)
}
