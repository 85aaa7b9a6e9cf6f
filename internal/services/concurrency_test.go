package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"gate-backend/internal/models"
)

type createOutcome struct {
	result *models.CreateMovementResult
	err    error
}

// createConcurrently releases n CreateMovement calls at once.
func createConcurrently(svc *GateMovementService, n int, vehicleFor func(i int) string) []createOutcome {
	out := make([]createOutcome, n)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			res, err := svc.CreateMovement(context.Background(), guard(fmt.Sprintf("guard%d", i)), &models.CreateMovementRequest{
				VehicleNo:    vehicleFor(i),
				MovementType: "Gate-In",
			})
			out[i] = createOutcome{result: res, err: err}
		}(i)
	}
	close(start)
	wg.Wait()
	return out
}

func TestCreateMovementConcurrent(t *testing.T) {
	tests := []struct {
		name        string
		workers     int
		vehicleFor  func(i int) string
		wantCreated int
	}{
		{"distinct vehicles", 20, func(i int) string { return fmt.Sprintf("MH12AB%04d", i) }, 20},
		{"one vehicle two guards", 2, func(int) string { return "MH12AB1234" }, 1},
		{"one vehicle many guards", 10, func(int) string { return "MH12AB1234" }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestGateService()
			outcomes := createConcurrently(svc, tt.workers, tt.vehicleFor)

			seen := map[string]bool{}
			for _, o := range outcomes {
				if o.err != nil {
					var seqErr *SequenceError
					if !errors.As(o.err, &seqErr) {
						t.Errorf("expected SequenceError for the losing request, got %v", o.err)
					}
					continue
				}
				if seen[o.result.GateEntryNo] {
					t.Errorf("gate entry number %s issued twice", o.result.GateEntryNo)
				}
				seen[o.result.GateEntryNo] = true
			}

			if len(seen) != tt.wantCreated {
				t.Fatalf("created %d movements, want %d", len(seen), tt.wantCreated)
			}
			for i := 1; i <= tt.wantCreated; i++ {
				if no := fmt.Sprintf("WH01-%06d", i); !seen[no] {
					t.Errorf("missing %s: numbers must be gap free", no)
				}
			}
			if got := store.seq.values["WH01"]; got != int64(tt.wantCreated) {
				t.Errorf("counter = %d, want %d", got, tt.wantCreated)
			}
		})
	}
}

func TestRawMaterialCreateConcurrentSameVehicle(t *testing.T) {
	svc, store, _ := newTestRawMaterialService()

	const workers = 5
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.CreateEntry(context.Background(), guard(fmt.Sprintf("guard%d", i)), rawRequest("Gate-In"))
		}(i)
	}
	close(start)
	wg.Wait()

	created := 0
	for _, err := range errs {
		var seqErr *SequenceError
		switch {
		case err == nil:
			created++
		case !errors.As(err, &seqErr):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 || len(store.entries) != 1 {
		t.Errorf("created=%d stored=%d, want exactly one Gate-In", created, len(store.entries))
	}
}
