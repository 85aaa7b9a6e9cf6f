package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gate-backend/internal/models"
)

type recordingNotifier struct {
	results []*models.CreateMovementResult
}

func (n *recordingNotifier) MovementCreated(r *models.CreateMovementResult) {
	n.results = append(n.results, r)
}

func newTestGateService() (*GateMovementService, *fakeMovementStore, *clock) {
	store := newFakeMovementStore("WH01", "WH02")
	clk := &clock{now: testEpoch}
	svc := NewGateMovementService(store, newFakeWarehouses("WH01", "WH02"), NewGateNumberGenerator(6), NewEditPolicy(24*time.Hour))
	svc.Now = clk.Now
	return svc, store, clk
}

func createEmpty(t *testing.T, svc *GateMovementService, actor models.Actor, vehicle, movementType string) *models.CreateMovementResult {
	t.Helper()
	res, err := svc.CreateMovement(context.Background(), actor, &models.CreateMovementRequest{
		VehicleNo:    vehicle,
		MovementType: movementType,
	})
	if err != nil {
		t.Fatalf("CreateMovement(%s, %s): %v", vehicle, movementType, err)
	}
	return res
}

func TestCreateMovementAlternation(t *testing.T) {
	svc, store, clk := newTestGateService()
	ctx := context.Background()
	g := guard("guard1")

	_, err := svc.CreateMovement(ctx, g, &models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-Out"})
	var seqErr *SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceError for first Gate-Out, got %v", err)
	}
	if seqErr.Prior != nil {
		t.Errorf("first movement rejection should have no prior, got %+v", seqErr.Prior)
	}
	if !strings.Contains(err.Error(), "must be Gate-In") {
		t.Errorf("unexpected message: %s", err)
	}

	in := createEmpty(t, svc, g, "mh12 ab 1234", "Gate-In")
	if in.GateEntryNo != "WH01-000001" {
		t.Errorf("gate entry no = %s, want WH01-000001", in.GateEntryNo)
	}
	if in.VehicleNo != "MH12AB1234" {
		t.Errorf("vehicle not normalized: %s", in.VehicleNo)
	}
	if len(in.Records) != 1 || in.Records[0].DocumentType != models.DocTypeEmptyVehicle {
		t.Fatalf("expected one empty vehicle row, got %+v", in.Records)
	}

	clk.Advance(time.Hour)
	_, err = svc.CreateMovement(ctx, g, &models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-In"})
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected SequenceError for repeated Gate-In, got %v", err)
	}
	if seqErr.Prior == nil || seqErr.Prior.GateEntryNo != "WH01-000001" {
		t.Errorf("prior should reference the first entry, got %+v", seqErr.Prior)
	}
	if !strings.Contains(err.Error(), "Must do Gate-Out first") {
		t.Errorf("unexpected message: %s", err)
	}

	out := createEmpty(t, svc, g, "MH12AB1234", "out")
	if out.GateEntryNo != "WH01-000002" {
		t.Errorf("gate entry no = %s, want WH01-000002", out.GateEntryNo)
	}
	if out.MovementType != models.GateOut {
		t.Errorf("movement type = %s", out.MovementType)
	}
	if got := store.seq.values["WH01"]; got != 2 {
		t.Errorf("rejected movements must not consume numbers, counter = %d", got)
	}
}

func TestCreateMovementCounterSharedAcrossVehicles(t *testing.T) {
	svc, _, _ := newTestGateService()
	g := guard("guard1")

	a := createEmpty(t, svc, g, "KA01AA0001", "Gate-In")
	b := createEmpty(t, svc, g, "KA01AA0002", "Gate-In")
	if a.GateEntryNo != "WH01-000001" || b.GateEntryNo != "WH01-000002" {
		t.Errorf("got %s and %s", a.GateEntryNo, b.GateEntryNo)
	}

	other := guard("guard9")
	other.WarehouseCode = "WH02"
	c := createEmpty(t, svc, other, "KA01AA0003", "Gate-In")
	if c.GateEntryNo != "WH02-000001" {
		t.Errorf("second warehouse should start its own counter, got %s", c.GateEntryNo)
	}
}

func TestCreateMovementConfigurationErrors(t *testing.T) {
	svc, _, _ := newTestGateService()
	ctx := context.Background()

	noWarehouse := guard("guard1")
	noWarehouse.WarehouseCode = ""
	unknown := guard("guard1")
	unknown.WarehouseCode = "WH99"

	for name, actor := range map[string]models.Actor{"unassigned": noWarehouse, "unknown": unknown} {
		_, err := svc.CreateMovement(ctx, actor, &models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-In"})
		var cfgErr *ConfigurationError
		if !errors.As(err, &cfgErr) {
			t.Errorf("%s: expected ConfigurationError, got %v", name, err)
		}
	}
}

func TestCreateMovementValidation(t *testing.T) {
	svc, _, _ := newTestGateService()
	ctx := context.Background()
	g := guard("guard1")

	tests := []struct {
		name string
		req  models.CreateMovementRequest
	}{
		{"bad type", models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "sideways"}},
		{"blank vehicle", models.CreateMovementRequest{VehicleNo: "  ", MovementType: "Gate-In"}},
		{"too many manual documents", models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-In", NoOfDocuments: 51}},
		{"bad km", models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-In", KMReading: strPtr("12a")}},
		{"short driver", models.CreateMovementRequest{VehicleNo: "MH12AB1234", MovementType: "Gate-In", DriverName: strPtr("A")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := svc.CreateMovement(ctx, g, &req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestCreateMovementBatchPartialFailure(t *testing.T) {
	svc, store, _ := newTestGateService()
	taken := "WH01-000099"
	store.addDocument(&models.Document{DocumentNo: "INV1", DocumentType: "Invoice", VehicleNo: "MH12AB1234", CreatedAt: testEpoch})
	store.addDocument(&models.Document{DocumentNo: "INV2", DocumentType: "Invoice", VehicleNo: "MH12AB1234", GateEntryNo: &taken, CreatedAt: testEpoch})

	notifier := &recordingNotifier{}
	svc.Notifier = notifier

	res, err := svc.CreateMovement(context.Background(), guard("guard1"), &models.CreateMovementRequest{
		VehicleNo:    "MH12AB1234",
		MovementType: "Gate-In",
		DocumentNos:  []string{"INV1", "INV2", "INV3", " INV1 ", ""},
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}

	if res.SuccessCount != 1 || res.FailureCount != 2 {
		t.Errorf("success=%d failure=%d, want 1 and 2", res.SuccessCount, res.FailureCount)
	}
	if len(res.Records) != 1 || res.Records[0].DocumentNo != "INV1" {
		t.Fatalf("unexpected records: %+v", res.Records)
	}
	if len(res.Documents) != 3 || !res.Documents[0].Success || res.Documents[1].Success || res.Documents[2].Success {
		t.Errorf("unexpected document results: %+v", res.Documents)
	}
	if got := store.docs["INV1"].GateEntryNo; got == nil || *got != res.GateEntryNo {
		t.Errorf("INV1 should be assigned to %s, got %v", res.GateEntryNo, got)
	}
	if got := store.docs["INV2"].GateEntryNo; got == nil || *got != taken {
		t.Errorf("INV2 assignment must be untouched, got %v", got)
	}
	if len(store.rows) != 1 {
		t.Errorf("expected 1 stored row, got %d", len(store.rows))
	}
	if len(notifier.results) != 1 {
		t.Errorf("expected one notification, got %d", len(notifier.results))
	}
}

func TestCreateMovementBatchAllFailRollsBack(t *testing.T) {
	svc, store, _ := newTestGateService()
	taken := "WH01-000099"
	store.addDocument(&models.Document{DocumentNo: "INV2", VehicleNo: "MH12AB1234", GateEntryNo: &taken, CreatedAt: testEpoch})

	_, err := svc.CreateMovement(context.Background(), guard("guard1"), &models.CreateMovementRequest{
		VehicleNo:    "MH12AB1234",
		MovementType: "Gate-In",
		DocumentNos:  []string{"INV2", "INV3"},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(store.rows) != 0 {
		t.Errorf("no rows should persist, got %d", len(store.rows))
	}
	if got := store.seq.values["WH01"]; got != 0 {
		t.Errorf("counter should roll back with the batch, got %d", got)
	}
}

func TestCreateMovementStoreFailureAbortsBatch(t *testing.T) {
	svc, store, _ := newTestGateService()
	store.addDocument(&models.Document{DocumentNo: "INV1", VehicleNo: "MH12AB1234", CreatedAt: testEpoch})
	store.insertErr = errors.New("disk full")

	_, err := svc.CreateMovement(context.Background(), guard("guard1"), &models.CreateMovementRequest{
		VehicleNo:    "MH12AB1234",
		MovementType: "Gate-In",
		DocumentNos:  []string{"INV1"},
	})
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("expected store error to surface, got %v", err)
	}
	if store.docs["INV1"].GateEntryNo != nil {
		t.Error("document must stay unassigned")
	}
}

func TestCreateMovementOperationalDataStampsEditTime(t *testing.T) {
	svc, store, _ := newTestGateService()
	ctx := context.Background()

	createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
	if store.rows[0].LastEditedAt != nil {
		t.Errorf("entry without operational data should have no edit time")
	}

	_, err := svc.CreateMovement(ctx, guard("guard1"), &models.CreateMovementRequest{
		VehicleNo: "MH12AB1234", MovementType: "Gate-Out", KMReading: strPtr("4521"),
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	out := store.rows[1]
	if out.LastEditedAt == nil || !out.LastEditedAt.Equal(out.CreatedAt) || out.EditCount != 0 {
		t.Errorf("operational data at creation: last_edited_at=%v edit_count=%d", out.LastEditedAt, out.EditCount)
	}
}

func TestCreateMovementManualRows(t *testing.T) {
	svc, _, _ := newTestGateService()

	res, err := svc.CreateMovement(context.Background(), guard("guard1"), &models.CreateMovementRequest{
		VehicleNo:     "MH12AB1234",
		MovementType:  "Gate-In",
		NoOfDocuments: 3,
		LoaderNames:   strPtr("raju, ,shyam"),
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if len(res.Records) != 3 || res.SuccessCount != 3 {
		t.Fatalf("expected 3 manual rows, got %d", len(res.Records))
	}
	for i, r := range res.Records {
		if r.GateEntryNo != res.GateEntryNo {
			t.Errorf("row %d has gate entry %s", i, r.GateEntryNo)
		}
		if r.DocumentType != models.DocTypeManualPending {
			t.Errorf("row %d document type = %s", i, r.DocumentType)
		}
		if r.LoaderNames == nil || *r.LoaderNames != "raju, shyam" {
			t.Errorf("row %d loaders = %v", i, r.LoaderNames)
		}
	}
	if got := *res.Records[1].Remarks; got != "Manual Gate-In for MH12AB1234 - Document 2 of 3" {
		t.Errorf("default remark = %q", got)
	}
	if !res.EditWindowExpires.Equal(testEpoch.Add(24 * time.Hour)) {
		t.Errorf("edit window expires at %v", res.EditWindowExpires)
	}

	res2, err := svc.CreateMovement(context.Background(), guard("guard1"), &models.CreateMovementRequest{
		VehicleNo:     "MH12AB1234",
		MovementType:  "Gate-Out",
		NoOfDocuments: 2,
		Remarks:       strPtr("  gate pass missing  "),
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	if got := *res2.Records[0].Remarks; got != "gate pass missing" {
		t.Errorf("supplied remark should win, got %q", got)
	}
}

func TestEditMovementWindow(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr bool
	}{
		{"inside window", 23*time.Hour + 59*time.Minute, false},
		{"exactly at window", 24 * time.Hour, true},
		{"just past window", 24*time.Hour + time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, clk := newTestGateService()
			created := createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
			clk.Advance(tt.elapsed)

			_, err := svc.EditMovement(context.Background(), guard("guard1"), created.GateEntryNo, models.MovementPatch{
				DriverName: strPtr("Ramesh"),
			})
			var windowErr *EditWindowExpiredError
			if tt.wantErr && !errors.As(err, &windowErr) {
				t.Errorf("expected EditWindowExpiredError, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestEditMovementOwnership(t *testing.T) {
	svc, store, clk := newTestGateService()
	ctx := context.Background()
	created := createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
	clk.Advance(time.Hour)

	_, err := svc.EditMovement(ctx, guard("guard2"), created.GateEntryNo, models.MovementPatch{Remarks: strPtr("mine now")})
	var ownerErr *OwnershipError
	if !errors.As(err, &ownerErr) {
		t.Fatalf("expected OwnershipError, got %v", err)
	}
	if store.rows[0].EditCount != 0 {
		t.Error("rejected edit must not change the row")
	}

	res, err := svc.EditMovement(ctx, securityAdmin("sadmin"), created.GateEntryNo, models.MovementPatch{Remarks: strPtr("checked")})
	if err != nil {
		t.Fatalf("admin edit: %v", err)
	}
	if res.EditCount != 1 {
		t.Errorf("edit count = %d", res.EditCount)
	}

	// Window is checked before ownership
	clk.Advance(30 * time.Hour)
	_, err = svc.EditMovement(ctx, guard("guard2"), created.GateEntryNo, models.MovementPatch{Remarks: strPtr("late")})
	var windowErr *EditWindowExpiredError
	if !errors.As(err, &windowErr) {
		t.Errorf("expected EditWindowExpiredError, got %v", err)
	}
}

func TestEditMovementAppliesToEveryRow(t *testing.T) {
	svc, store, clk := newTestGateService()
	ctx := context.Background()

	res, err := svc.CreateMovement(ctx, guard("guard1"), &models.CreateMovementRequest{
		VehicleNo: "MH12AB1234", MovementType: "Gate-In", NoOfDocuments: 3,
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	clk.Advance(2 * time.Hour)

	edit, err := svc.EditMovement(ctx, guard("guard1"), res.GateEntryNo, models.MovementPatch{
		DriverName:  strPtr("  Ramesh   Kumar "),
		KMReading:   strPtr(" 45210 "),
		LoaderNames: strPtr(""),
		Remarks:     strPtr("   "),
	})
	if err != nil {
		t.Fatalf("EditMovement: %v", err)
	}
	if edit.RowsUpdated != 3 {
		t.Errorf("rows updated = %d", edit.RowsUpdated)
	}
	if strings.Join(edit.UpdatedFields, ",") != "driver_name,km_reading" {
		t.Errorf("updated fields = %v", edit.UpdatedFields)
	}
	for _, r := range store.rows {
		if *r.DriverName != "Ramesh Kumar" || *r.KMReading != "45210" {
			t.Errorf("row %d not patched: %v %v", r.ID, *r.DriverName, *r.KMReading)
		}
		if r.EditCount != 1 || r.LastEditedAt == nil || !r.LastEditedAt.Equal(clk.now) {
			t.Errorf("row %d edit tracking wrong: count=%d at=%v", r.ID, r.EditCount, r.LastEditedAt)
		}
		if !strings.HasPrefix(*r.Remarks, "Manual Gate-In") {
			t.Errorf("blank remark must leave the value unchanged, got %q", *r.Remarks)
		}
	}
}

func TestEditMovementEmptyPatchStillCounts(t *testing.T) {
	svc, store, _ := newTestGateService()
	created := createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")

	res, err := svc.EditMovement(context.Background(), guard("guard1"), created.GateEntryNo, models.MovementPatch{})
	if err != nil {
		t.Fatalf("EditMovement: %v", err)
	}
	if len(res.UpdatedFields) != 0 || res.EditCount != 1 || store.rows[0].EditCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEditMovementErrors(t *testing.T) {
	svc, store, _ := newTestGateService()
	ctx := context.Background()
	created := createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")

	_, err := svc.EditMovement(ctx, guard("guard1"), "WH01-999999", models.MovementPatch{})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	_, err = svc.EditMovement(ctx, guard("guard1"), created.GateEntryNo, models.MovementPatch{KMReading: strPtr("1234567")})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if store.rows[0].KMReading != nil || store.rows[0].EditCount != 0 {
		t.Error("invalid patch must not touch the row")
	}
}

// assertAlternates fails when a vehicle's history does not start with
// Gate-In and alternate from there.
func assertAlternates(t *testing.T, svc *GateMovementService, vehicleNo string) {
	t.Helper()
	views, err := svc.VehicleHistory(context.Background(), itAdmin("it"), vehicleNo, 0)
	if err != nil {
		t.Fatalf("VehicleHistory(%s): %v", vehicleNo, err)
	}
	var last *models.MovementRef
	for i := len(views) - 1; i >= 0; i-- {
		m := views[i].GateMovement
		if m.MovementType != NextAllowed(last) {
			t.Fatalf("%s: %s %s follows %v", vehicleNo, m.GateEntryNo, m.MovementType, last)
		}
		last = m.Ref()
	}
}

func TestEditMovementVehicleChange(t *testing.T) {
	const (
		a = "MH12AB1234"
		b = "MH12CD5678"
		c = "KA01AA0001"
	)
	type step struct{ vehicle, movement string }

	tests := []struct {
		name    string
		steps   []step
		edit    string
		target  string
		wantErr bool
	}{
		{"gate-in onto a vehicle already inside", []step{{a, "Gate-In"}, {b, "Gate-In"}}, "WH01-000002", a, true},
		{"target has a later entry", []step{{b, "Gate-In"}, {a, "Gate-In"}}, "WH01-000001", a, true},
		{"not the latest entry of its vehicle", []step{{a, "Gate-In"}, {a, "Gate-Out"}}, "WH01-000001", c, true},
		{"correction to a fresh vehicle", []step{{a, "Gate-In"}}, "WH01-000001", c, false},
		{"gate-out onto a vehicle inside", []step{{a, "Gate-In"}, {b, "Gate-In"}, {b, "Gate-Out"}}, "WH01-000003", a, false},
		{"same vehicle re-supplied", []step{{a, "Gate-In"}}, "WH01-000001", " mh12 ab1234 ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, clk := newTestGateService()
			for _, st := range tt.steps {
				createEmpty(t, svc, guard("guard1"), st.vehicle, st.movement)
				clk.Advance(time.Minute)
			}

			_, err := svc.EditMovement(context.Background(), guard("guard1"), tt.edit, models.MovementPatch{VehicleNo: strPtr(tt.target)})
			var seqErr *SequenceError
			if tt.wantErr {
				if !errors.As(err, &seqErr) {
					t.Fatalf("expected SequenceError, got %v", err)
				}
				for _, r := range store.rows {
					if r.EditCount != 0 {
						t.Errorf("rejected move must not touch %s", r.GateEntryNo)
					}
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for _, v := range []string{a, b, c} {
				assertAlternates(t, svc, v)
			}
		})
	}
}

func TestAssignDocument(t *testing.T) {
	svc, store, clk := newTestGateService()
	ctx := context.Background()

	res, err := svc.CreateMovement(ctx, guard("guard1"), &models.CreateMovementRequest{
		VehicleNo: "MH12AB1234", MovementType: "Gate-In", NoOfDocuments: 2,
	})
	if err != nil {
		t.Fatalf("CreateMovement: %v", err)
	}
	store.addDocument(&models.Document{DocumentNo: "INV7", DocumentType: "Invoice", VehicleNo: "MH12AB1234", CreatedAt: testEpoch})
	store.addDocument(&models.Document{DocumentNo: "INV8", DocumentType: "Invoice", VehicleNo: "MH12AB1234", CreatedAt: testEpoch})
	clk.Advance(time.Hour)

	first, second := res.Records[0].ID, res.Records[1].ID

	row, err := svc.AssignDocument(ctx, guard("guard1"), first, "INV7")
	if err != nil {
		t.Fatalf("AssignDocument: %v", err)
	}
	if row.DocumentNo != "INV7" || row.EditCount != 1 {
		t.Errorf("unexpected row after assignment: %+v", row)
	}
	if got := store.docs["INV7"].GateEntryNo; got == nil || *got != res.GateEntryNo {
		t.Errorf("INV7 should point at %s", res.GateEntryNo)
	}

	tests := []struct {
		name   string
		actor  models.Actor
		id     int
		docNo  string
		target interface{}
	}{
		{"row already assigned", guard("guard1"), first, "INV8", new(*ValidationError)},
		{"document already assigned", guard("guard1"), second, "INV7", new(*ValidationError)},
		{"unknown document", guard("guard1"), second, "INV404", new(*NotFoundError)},
		{"unknown row", guard("guard1"), 999, "INV8", new(*NotFoundError)},
		{"other guard", guard("guard2"), second, "INV8", new(*OwnershipError)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AssignDocument(ctx, tt.actor, tt.id, tt.docNo)
			if !errors.As(err, tt.target) {
				t.Errorf("got %v (%T)", err, err)
			}
		})
	}
}

func TestGetVehicleStatus(t *testing.T) {
	svc, _, _ := newTestGateService()
	ctx := context.Background()

	status, err := svc.GetVehicleStatus(ctx, "MH12AB1234")
	if err != nil {
		t.Fatalf("GetVehicleStatus: %v", err)
	}
	if !status.CanGateIn || status.CanGateOut || status.LastMovement != nil || status.NextAllowed != models.GateIn {
		t.Errorf("fresh vehicle status = %+v", status)
	}

	createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
	status, err = svc.GetVehicleStatus(ctx, "mh12ab1234")
	if err != nil {
		t.Fatalf("GetVehicleStatus: %v", err)
	}
	if status.CanGateIn || !status.CanGateOut || status.NextAllowed != models.GateOut {
		t.Errorf("status after Gate-In = %+v", status)
	}
}

func TestVehicleHistory(t *testing.T) {
	svc, _, clk := newTestGateService()
	ctx := context.Background()

	createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
	clk.Advance(time.Hour)
	createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-Out")
	createEmpty(t, svc, guard("guard1"), "KA01AA0001", "Gate-In")

	views, err := svc.VehicleHistory(ctx, guard("guard2"), " mh12ab1234 ", 0)
	if err != nil {
		t.Fatalf("VehicleHistory: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 movements, got %d", len(views))
	}
	if views[0].MovementType != models.GateOut || views[1].MovementType != models.GateIn {
		t.Errorf("history should be newest first, got %s then %s", views[0].MovementType, views[1].MovementType)
	}
	if views[0].CanEdit {
		t.Error("another guard's entry must not be editable")
	}

	if _, err := svc.VehicleHistory(ctx, guard("guard1"), "", 10); err == nil {
		t.Error("blank vehicle number should be rejected")
	}
}

func TestQueryMovementsScopesAndDecorates(t *testing.T) {
	svc, _, clk := newTestGateService()
	ctx := context.Background()

	other := guard("guard9")
	other.WarehouseCode = "WH02"
	createEmpty(t, svc, guard("guard1"), "MH12AB1234", "Gate-In")
	createEmpty(t, svc, other, "MH12AB9999", "Gate-In")
	clk.Advance(90 * time.Minute)

	views, err := svc.QueryMovements(ctx, guard("guard1"), models.MovementFilter{WarehouseCode: "WH02"})
	if err != nil {
		t.Fatalf("QueryMovements: %v", err)
	}
	if len(views) != 1 || views[0].WarehouseCode != "WH01" {
		t.Fatalf("guard should only see WH01, got %d rows", len(views))
	}
	v := views[0]
	if !v.CanEdit || v.TimeRemaining != "22h 30m" {
		t.Errorf("can_edit=%v remaining=%s", v.CanEdit, v.TimeRemaining)
	}
	if v.IsOperationalComplete || len(v.MissingOperationalFields) != 3 {
		t.Errorf("missing fields = %v", v.MissingOperationalFields)
	}

	views, err = svc.QueryMovements(ctx, guard("guard2"), models.MovementFilter{})
	if err != nil {
		t.Fatalf("QueryMovements: %v", err)
	}
	if views[0].CanEdit {
		t.Error("another guard's row must not be editable")
	}

	views, err = svc.QueryMovements(ctx, itAdmin("it"), models.MovementFilter{})
	if err != nil {
		t.Fatalf("QueryMovements: %v", err)
	}
	if len(views) != 2 {
		t.Errorf("IT admin should see every warehouse, got %d", len(views))
	}

	from := testEpoch
	to := testEpoch.Add(-time.Hour)
	_, err = svc.QueryMovements(ctx, itAdmin("it"), models.MovementFilter{From: &from, To: &to})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("inverted range should be rejected, got %v", err)
	}
}

func TestUnassignedDocuments(t *testing.T) {
	svc, store, _ := newTestGateService()
	ctx := context.Background()
	taken := "WH01-000001"

	store.addDocument(&models.Document{DocumentNo: "D1", VehicleNo: "MH12AB1234", CreatedAt: testEpoch.Add(-2 * time.Hour)})
	store.addDocument(&models.Document{DocumentNo: "D2", VehicleNo: "MH12AB1234", CreatedAt: testEpoch.Add(-10 * time.Hour)})
	store.addDocument(&models.Document{DocumentNo: "D3", VehicleNo: "MH12AB1234", CreatedAt: testEpoch.Add(-time.Hour), GateEntryNo: &taken})

	docs, err := svc.UnassignedDocuments(ctx, "MH12AB1234", 0)
	if err != nil {
		t.Fatalf("UnassignedDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].DocumentNo != "D1" {
		t.Fatalf("expected only D1, got %+v", docs)
	}
	if docs[0].AgeHours != 2 {
		t.Errorf("age hours = %v", docs[0].AgeHours)
	}

	docs, err = svc.UnassignedDocuments(ctx, "MH12AB1234", 12)
	if err != nil || len(docs) != 2 {
		t.Errorf("12h lookback: %d docs, err %v", len(docs), err)
	}

	if _, err := svc.UnassignedDocuments(ctx, "MH12AB1234", 200); err == nil {
		t.Error("lookback above a week should be rejected")
	}

	recent, err := svc.RecentDocuments(ctx, "MH12AB1234")
	if err != nil {
		t.Fatalf("RecentDocuments: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("recent documents include assigned ones, got %d", len(recent))
	}
}

func TestSummarize(t *testing.T) {
	full := func(edits int) *models.GateMovement {
		return &models.GateMovement{DriverName: strPtr("Ramesh"), KMReading: strPtr("123"), LoaderNames: strPtr("a"), EditCount: edits}
	}
	noKM := full(0)
	noKM.KMReading = nil

	summary := Summarize([]*models.GateMovement{full(2), {}, {DriverName: strPtr("  ")}, noKM})

	if summary.TotalEntries != 4 || summary.CompleteEntries != 1 || summary.IncompleteEntries != 3 {
		t.Errorf("counts = %+v", summary)
	}
	if summary.CompletionPercentage != 25 {
		t.Errorf("completion = %v", summary.CompletionPercentage)
	}
	if summary.MissingDriverName != 2 || summary.MissingKMReading != 3 || summary.MissingLoaderNames != 2 {
		t.Errorf("missing = %d %d %d", summary.MissingDriverName, summary.MissingKMReading, summary.MissingLoaderNames)
	}
	if summary.EditedEntries != 1 || summary.MultipleEditedEntries != 1 {
		t.Errorf("edits = %d %d", summary.EditedEntries, summary.MultipleEditedEntries)
	}
	// Loaders missing on exactly half is not above the threshold
	if len(summary.Recommendations) != 3 {
		t.Errorf("recommendations = %v", summary.Recommendations)
	}

	empty := Summarize(nil)
	if empty.CompletionPercentage != 0 || empty.Recommendations == nil || len(empty.Recommendations) != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	done := Summarize([]*models.GateMovement{full(0), full(0), full(1)})
	if done.CompletionPercentage != 100 || len(done.Recommendations) != 0 {
		t.Errorf("complete summary = %+v", done)
	}
}
