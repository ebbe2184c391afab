// Package lock provides per-session locking for concurrent ledger operations.
// Property-based tests for concurrent stack-mutation safety.
package lock

import (
	"sync"
	"sync/atomic"
	"testing"

	"pgregory.net/rapid"
)

// TestConcurrentStackSafetyProperty checks that concurrent stack mutations on
// the same session, serialized by the lock, produce the same result as
// sequential execution.
func TestConcurrentStackSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialStack := rapid.Int64Range(1000, 100000).Draw(t, "initialStack")
		numOps := rapid.IntRange(2, 20).Draw(t, "numOps")

		amounts := make([]int64, numOps)
		expectedFinalStack := initialStack
		for i := 0; i < numOps; i++ {
			amount := rapid.Int64Range(-500, 500).Draw(t, "amount")
			amounts[i] = amount
			expectedFinalStack += amount
		}

		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")

		sl := NewSessionLock()
		stack := initialStack

		var wg sync.WaitGroup
		wg.Add(numOps)

		for _, amount := range amounts {
			go func(amount int64) {
				defer wg.Done()
				sl.Lock(sessionID)
				defer sl.Unlock(sessionID)
				// Read-modify-write, the same shape as a leave's
				// balance check plus stack write.
				stack += amount
			}(amount)
		}

		wg.Wait()

		if stack != expectedFinalStack {
			t.Fatalf("Stack mismatch with locking: expected %d, got %d (initial=%d, numOps=%d)",
				expectedFinalStack, stack, initialStack, numOps)
		}
	})
}

// TestWithLockFunctionProperty tests that WithLock correctly serializes
// operations.
func TestWithLockFunctionProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialStack := rapid.Int64Range(1000, 100000).Draw(t, "initialStack")
		numOps := rapid.IntRange(5, 30).Draw(t, "numOps")
		amountPerOp := rapid.Int64Range(1, 100).Draw(t, "amountPerOp")

		expectedFinalStack := initialStack + int64(numOps)*amountPerOp

		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")

		sl := NewSessionLock()
		stack := initialStack

		var wg sync.WaitGroup
		wg.Add(numOps)

		for i := 0; i < numOps; i++ {
			go func() {
				defer wg.Done()
				_ = sl.WithLock(sessionID, func() error {
					stack += amountPerOp
					return nil
				})
			}()
		}

		wg.Wait()

		if stack != expectedFinalStack {
			t.Fatalf("Stack mismatch with WithLock: expected %d, got %d",
				expectedFinalStack, stack)
		}
	})
}

// TestMultipleSessionsIndependentLocksProperty tests that locks for different
// sessions are independent and don't block each other.
func TestMultipleSessionsIndependentLocksProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numSessions := rapid.IntRange(2, 10).Draw(t, "numSessions")
		opsPerSession := rapid.IntRange(5, 20).Draw(t, "opsPerSession")

		initialStacks := make(map[int64]int64)
		expectedStacks := make(map[int64]int64)
		for i := 0; i < numSessions; i++ {
			sessionID := int64(i + 1)
			stack := rapid.Int64Range(1000, 10000).Draw(t, "initialStack")
			initialStacks[sessionID] = stack
			expectedStacks[sessionID] = stack + int64(opsPerSession)*10 // Each op adds 10
		}

		sl := NewSessionLock()

		stacks := make(map[int64]*int64)
		for sessionID, stack := range initialStacks {
			s := stack
			stacks[sessionID] = &s
		}

		var wg sync.WaitGroup
		wg.Add(numSessions * opsPerSession)

		for sessionID := int64(1); sessionID <= int64(numSessions); sessionID++ {
			for j := 0; j < opsPerSession; j++ {
				go func(sid int64) {
					defer wg.Done()
					sl.Lock(sid)
					defer sl.Unlock(sid)
					*stacks[sid] += 10
				}(sessionID)
			}
		}

		wg.Wait()

		for sessionID := int64(1); sessionID <= int64(numSessions); sessionID++ {
			if *stacks[sessionID] != expectedStacks[sessionID] {
				t.Fatalf("Session %d stack mismatch: expected %d, got %d",
					sessionID, expectedStacks[sessionID], *stacks[sessionID])
			}
		}
	})
}

// TestTryLockSingleWinnerProperty tests that simultaneous TryLock attempts on
// one session admit at least one winner and leave the lock free afterwards.
func TestTryLockSingleWinnerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		numAttempts := rapid.IntRange(5, 20).Draw(t, "numAttempts")

		sl := NewSessionLock()

		var successCount atomic.Int32
		var wg sync.WaitGroup
		wg.Add(numAttempts)

		startCh := make(chan struct{})

		for i := 0; i < numAttempts; i++ {
			go func() {
				defer wg.Done()
				<-startCh

				if sl.TryLock(sessionID) {
					successCount.Add(1)
					sl.Unlock(sessionID)
				}
			}()
		}

		close(startCh)
		wg.Wait()

		if successCount.Load() < 1 {
			t.Fatalf("At least one TryLock should succeed, got %d successes", successCount.Load())
		}

		if !sl.TryLock(sessionID) {
			t.Fatal("Lock should be available after all operations complete")
		}
		sl.Unlock(sessionID)
	})
}

// TestLockUnlockSymmetryProperty tests that every Lock has a corresponding
// Unlock.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		numCycles := rapid.IntRange(1, 50).Draw(t, "numCycles")

		sl := NewSessionLock()

		for i := 0; i < numCycles; i++ {
			sl.Lock(sessionID)
			sl.Unlock(sessionID)
		}

		if !sl.TryLock(sessionID) {
			t.Fatal("Lock should be available after symmetric lock/unlock cycles")
		}
		sl.Unlock(sessionID)
	})
}

// TestIsLockedObservationProperty tests that IsLocked tracks the lock state
// through lock/unlock cycles and stays independent across sessions.
func TestIsLockedObservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		sessionID := rapid.Int64Range(1, 1000000).Draw(t, "sessionID")
		otherID := rapid.Int64Range(1000001, 2000000).Draw(t, "otherID")
		numCycles := rapid.IntRange(1, 20).Draw(t, "numCycles")

		sl := NewSessionLock()

		if sl.IsLocked(sessionID) {
			t.Fatal("Fresh session should not be locked")
		}

		for i := 0; i < numCycles; i++ {
			sl.Lock(sessionID)
			if !sl.IsLocked(sessionID) {
				t.Fatal("IsLocked should report true while held")
			}
			if sl.IsLocked(otherID) {
				t.Fatal("Holding one session's lock should not lock another")
			}
			sl.Unlock(sessionID)
			if sl.IsLocked(sessionID) {
				t.Fatal("IsLocked should report false after release")
			}
		}
	})
}
