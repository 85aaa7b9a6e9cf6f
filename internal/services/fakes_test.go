package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"gate-backend/internal/models"
)

var testEpoch = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// clock is a manually advanced time source.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeWarehouses struct {
	byCode map[string]*models.Warehouse
}

func newFakeWarehouses(codes ...string) *fakeWarehouses {
	f := &fakeWarehouses{byCode: map[string]*models.Warehouse{}}
	for _, c := range codes {
		f.byCode[c] = &models.Warehouse{WarehouseCode: c, WarehouseName: c + " Warehouse", SiteCode: "S1", IsActive: true}
	}
	return f
}

func (f *fakeWarehouses) Get(ctx context.Context, code string) (*models.Warehouse, error) {
	return f.byCode[code], nil
}

func (f *fakeWarehouses) List(ctx context.Context) ([]*models.Warehouse, error) {
	var out []*models.Warehouse
	for _, w := range f.byCode {
		out = append(out, w)
	}
	return out, nil
}

// fakeSequences is the in-memory warehouse counter table.
type fakeSequences struct {
	values map[string]int64
	known  map[string]bool
	err    error
}

func newFakeSequences(codes ...string) *fakeSequences {
	s := &fakeSequences{values: map[string]int64{}, known: map[string]bool{}}
	for _, c := range codes {
		s.known[c] = true
	}
	return s
}

func (s *fakeSequences) IncrementSequence(ctx context.Context, code string) (int64, bool, error) {
	if s.err != nil {
		return 0, false, s.err
	}
	if !s.known[code] {
		return 0, false, nil
	}
	s.values[code]++
	return s.values[code], true, nil
}

func (s *fakeSequences) snapshot() map[string]int64 {
	out := make(map[string]int64, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// fakeMovementStore keeps movements and documents in memory. Transactions
// snapshot state and restore it on error.
type fakeMovementStore struct {
	mu        sync.Mutex
	rows      []*models.GateMovement
	docs      map[string]*models.Document
	seq       *fakeSequences
	nextID    int
	insertErr error
}

func newFakeMovementStore(warehouses ...string) *fakeMovementStore {
	return &fakeMovementStore{docs: map[string]*models.Document{}, seq: newFakeSequences(warehouses...)}
}

func (f *fakeMovementStore) addDocument(d *models.Document) {
	f.docs[d.DocumentNo] = d
}

type movementState struct {
	rows   []*models.GateMovement
	docs   map[string]models.Document
	seq    map[string]int64
	nextID int
}

func (f *fakeMovementStore) save() movementState {
	st := movementState{
		rows:   append([]*models.GateMovement(nil), f.rows...),
		docs:   map[string]models.Document{},
		seq:    f.seq.snapshot(),
		nextID: f.nextID,
	}
	for k, d := range f.docs {
		st.docs[k] = *d
	}
	return st
}

func (f *fakeMovementStore) restore(st movementState) {
	f.rows = st.rows
	f.docs = map[string]*models.Document{}
	for k, d := range st.docs {
		d := d
		f.docs[k] = &d
	}
	f.seq.values = st.seq
	f.nextID = st.nextID
}

func (f *fakeMovementStore) WithVehicleLock(ctx context.Context, vehicleNo string, fn func(MovementTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.save()
	if err := fn(&fakeMovementTx{store: f}); err != nil {
		f.restore(st)
		return err
	}
	return nil
}

func (f *fakeMovementStore) last(vehicleNo string) *models.GateMovement {
	var last *models.GateMovement
	for _, m := range f.rows {
		if m.VehicleNo != vehicleNo {
			continue
		}
		if last == nil || m.CreatedAt.After(last.CreatedAt) || (m.CreatedAt.Equal(last.CreatedAt) && m.ID > last.ID) {
			last = m
		}
	}
	return last
}

func (f *fakeMovementStore) LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last(vehicleNo), nil
}

func (f *fakeMovementStore) newestFirst(match func(*models.GateMovement) bool, limit int) []*models.GateMovement {
	var out []*models.GateMovement
	for _, m := range f.rows {
		if match(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (f *fakeMovementStore) FindByFilters(ctx context.Context, flt models.MovementFilter) ([]*models.GateMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newestFirst(func(m *models.GateMovement) bool {
		if flt.From != nil && m.CreatedAt.Before(*flt.From) {
			return false
		}
		if flt.To != nil && m.CreatedAt.After(*flt.To) {
			return false
		}
		if flt.VehicleNo != "" && !strings.Contains(m.VehicleNo, flt.VehicleNo) {
			return false
		}
		if flt.MovementType != "" && string(m.MovementType) != flt.MovementType {
			return false
		}
		if flt.WarehouseCode != "" && m.WarehouseCode != flt.WarehouseCode {
			return false
		}
		if flt.GateEntryNo != "" && m.GateEntryNo != flt.GateEntryNo {
			return false
		}
		return true
	}, flt.Limit), nil
}

func (f *fakeMovementStore) History(ctx context.Context, vehicleNo string, limit int) ([]*models.GateMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.newestFirst(func(m *models.GateMovement) bool { return m.VehicleNo == vehicleNo }, limit), nil
}

func applyMovementPatch(m *models.GateMovement, p models.MovementPatch) {
	if p.VehicleNo != nil {
		m.VehicleNo = *p.VehicleNo
	}
	if p.Remarks != nil {
		m.Remarks = p.Remarks
	}
	if p.DriverName != nil {
		m.DriverName = p.DriverName
	}
	if p.KMReading != nil {
		m.KMReading = p.KMReading
	}
	if p.LoaderNames != nil {
		m.LoaderNames = p.LoaderNames
	}
}

func (f *fakeMovementStore) EditMovements(ctx context.Context, gateEntryNo string, check func([]*models.GateMovement, *VehicleChange) error,
	patch models.MovementPatch, editedAt time.Time) ([]*models.GateMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var rows []*models.GateMovement
	for _, m := range f.rows {
		if m.GateEntryNo == gateEntryNo {
			rows = append(rows, m)
		}
	}
	var change *VehicleChange
	if patch.VehicleNo != nil && len(rows) > 0 && *patch.VehicleNo != rows[0].VehicleNo {
		change = &VehicleChange{
			From:     rows[0].VehicleNo,
			To:       *patch.VehicleNo,
			LastFrom: f.last(rows[0].VehicleNo).Ref(),
			LastTo:   f.last(*patch.VehicleNo).Ref(),
		}
	}
	if err := check(rows, change); err != nil {
		return nil, err
	}
	for _, m := range rows {
		applyMovementPatch(m, patch)
		at := editedAt
		m.LastEditedAt = &at
		m.EditCount++
	}
	return rows, nil
}

func (f *fakeMovementStore) AssignDocument(ctx context.Context, movementID int, documentNo string,
	check func(*models.GateMovement, *models.Document) error, editedAt time.Time) (*models.GateMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var row *models.GateMovement
	for _, m := range f.rows {
		if m.ID == movementID {
			row = m
		}
	}
	doc := f.docs[documentNo]
	if err := check(row, doc); err != nil {
		return nil, err
	}
	row.DocumentNo = doc.DocumentNo
	row.DocumentType = doc.DocumentType
	row.SubDocumentType = doc.SubDocumentType
	at := editedAt
	row.LastEditedAt = &at
	row.EditCount++
	entry := row.GateEntryNo
	doc.GateEntryNo = &entry
	return row, nil
}

func (f *fakeMovementStore) documents(vehicleNo string, since time.Time, unassignedOnly bool) []*models.Document {
	var out []*models.Document
	for _, d := range f.docs {
		if d.VehicleNo != vehicleNo || d.CreatedAt.Before(since) {
			continue
		}
		if unassignedOnly && d.GateEntryNo != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentNo < out[j].DocumentNo })
	return out
}

func (f *fakeMovementStore) UnassignedDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents(vehicleNo, since, true), nil
}

func (f *fakeMovementStore) RecentDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.documents(vehicleNo, since, false), nil
}

type fakeMovementTx struct {
	store *fakeMovementStore
}

func (t *fakeMovementTx) IncrementSequence(ctx context.Context, code string) (int64, bool, error) {
	return t.store.seq.IncrementSequence(ctx, code)
}

func (t *fakeMovementTx) LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error) {
	return t.store.last(vehicleNo), nil
}

func (t *fakeMovementTx) Insert(ctx context.Context, m *models.GateMovement) error {
	if t.store.insertErr != nil {
		return t.store.insertErr
	}
	t.store.nextID++
	m.ID = t.store.nextID
	t.store.rows = append(t.store.rows, m)
	return nil
}

func (t *fakeMovementTx) LockDocument(ctx context.Context, documentNo string) (*models.Document, error) {
	return t.store.docs[documentNo], nil
}

func (t *fakeMovementTx) MarkDocumentAssigned(ctx context.Context, documentNo, gateEntryNo string) error {
	d, ok := t.store.docs[documentNo]
	if !ok {
		return errors.New("document vanished")
	}
	entry := gateEntryNo
	d.GateEntryNo = &entry
	return nil
}

func (t *fakeMovementTx) Savepoint(ctx context.Context, fn func(MovementTx) error) error {
	st := t.store.save()
	if err := fn(t); err != nil {
		t.store.restore(st)
		return err
	}
	return nil
}

// fakeRawMaterialStore is the raw material counterpart of fakeMovementStore.
type fakeRawMaterialStore struct {
	mu      sync.Mutex
	entries []*models.RawMaterialEntry
	seq     *fakeSequences
}

func newFakeRawMaterialStore(warehouses ...string) *fakeRawMaterialStore {
	return &fakeRawMaterialStore{seq: newFakeSequences(warehouses...)}
}

func (f *fakeRawMaterialStore) WithVehicleLock(ctx context.Context, vehicleNo string, fn func(RawMaterialTx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	seq := f.seq.snapshot()
	if err := fn(&fakeRawMaterialTx{store: f}); err != nil {
		f.entries = f.entries[:n]
		f.seq.values = seq
		return err
	}
	return nil
}

func (f *fakeRawMaterialStore) FindByFilters(ctx context.Context, flt models.RawMaterialFilter) ([]*models.RawMaterialEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.RawMaterialEntry
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if flt.WarehouseCode != "" && e.WarehouseCode != flt.WarehouseCode {
			continue
		}
		if flt.VehicleNo != "" && !strings.Contains(e.VehicleNo, flt.VehicleNo) {
			continue
		}
		if flt.GateType != "" && string(e.GateType) != flt.GateType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeRawMaterialStore) EditEntry(ctx context.Context, id int, check func(*models.RawMaterialEntry, *VehicleChange) error,
	patch models.RawMaterialPatch, editedAt time.Time) (*models.RawMaterialEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var entry *models.RawMaterialEntry
	for _, e := range f.entries {
		if e.ID == id {
			entry = e
		}
	}
	var change *VehicleChange
	if entry != nil && patch.VehicleNo != nil && *patch.VehicleNo != entry.VehicleNo {
		change = &VehicleChange{
			From:     entry.VehicleNo,
			To:       *patch.VehicleNo,
			LastFrom: f.last(entry.VehicleNo).Ref(),
			LastTo:   f.last(*patch.VehicleNo).Ref(),
		}
	}
	if err := check(entry, change); err != nil {
		return nil, err
	}
	if patch.VehicleNo != nil {
		entry.VehicleNo = *patch.VehicleNo
	}
	if patch.DocumentNo != nil {
		entry.DocumentNo = *patch.DocumentNo
	}
	if patch.NameOfParty != nil {
		entry.NameOfParty = *patch.NameOfParty
	}
	if patch.DescriptionOfMaterial != nil {
		entry.DescriptionOfMaterial = *patch.DescriptionOfMaterial
	}
	if patch.Quantity != nil {
		entry.Quantity = *patch.Quantity
	}
	at := editedAt
	entry.LastEditedAt = &at
	entry.EditCount++
	return entry, nil
}

func (f *fakeRawMaterialStore) Statistics(ctx context.Context, since time.Time, warehouseCode string) (*models.RawMaterialStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.RawMaterialStats{}
	vehicles := map[string]bool{}
	for _, e := range f.entries {
		if e.CreatedAt.Before(since) || (warehouseCode != "" && e.WarehouseCode != warehouseCode) {
			continue
		}
		stats.TotalEntries++
		if e.GateType == models.GateIn {
			stats.GateInCount++
		} else {
			stats.GateOutCount++
		}
		if e.EditCount > 0 {
			stats.EditedEntries++
		}
		vehicles[e.VehicleNo] = true
	}
	stats.UniqueVehicles = len(vehicles)
	return stats, nil
}

type fakeRawMaterialTx struct {
	store *fakeRawMaterialStore
}

func (t *fakeRawMaterialTx) IncrementSequence(ctx context.Context, code string) (int64, bool, error) {
	return t.store.seq.IncrementSequence(ctx, code)
}

func (f *fakeRawMaterialStore) last(vehicleNo string) *models.RawMaterialEntry {
	var last *models.RawMaterialEntry
	for _, e := range f.entries {
		if e.VehicleNo == vehicleNo && (last == nil || !e.CreatedAt.Before(last.CreatedAt)) {
			last = e
		}
	}
	return last
}

func (t *fakeRawMaterialTx) LastEntry(ctx context.Context, vehicleNo string) (*models.RawMaterialEntry, error) {
	return t.store.last(vehicleNo), nil
}

func (t *fakeRawMaterialTx) Insert(ctx context.Context, e *models.RawMaterialEntry) error {
	e.ID = len(t.store.entries) + 1
	t.store.entries = append(t.store.entries, e)
	return nil
}

func strPtr(s string) *string { return &s }

func guard(username string) models.Actor {
	return models.Actor{
		UserID:        len(username),
		Username:      username,
		FullName:      strings.ToUpper(username),
		Roles:         models.NewRoleSet(models.RoleSecurityGuard),
		WarehouseCode: "WH01",
		SiteCode:      "S1",
	}
}

func securityAdmin(username string) models.Actor {
	a := guard(username)
	a.Roles = models.NewRoleSet(models.RoleSecurityAdmin)
	return a
}

func itAdmin(username string) models.Actor {
	a := guard(username)
	a.Roles = models.NewRoleSet(models.RoleITAdmin)
	return a
}
