package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gate-backend/internal/models"
)

const (
	DefaultEditWindow = 24 * time.Hour
	MaxLoaderNames    = 10
)

var (
	kmReadingRegex = regexp.MustCompile(`^[0-9]{3,6}$`)
	vehicleNoRegex = regexp.MustCompile(`^[A-Z0-9]{4,15}$`)
)

// EditPolicy decides whether a stored record may still be changed and by whom.
type EditPolicy struct {
	Window time.Duration
}

func NewEditPolicy(window time.Duration) EditPolicy {
	if window <= 0 {
		window = DefaultEditWindow
	}
	return EditPolicy{Window: window}
}

// CanEdit reports whether now falls strictly inside the edit window.
func (p EditPolicy) CanEdit(createdAt, now time.Time) bool {
	return now.Sub(createdAt) < p.Window
}

// TimeRemaining is max(0, window - elapsed).
func (p EditPolicy) TimeRemaining(createdAt, now time.Time) time.Duration {
	remaining := p.Window - now.Sub(createdAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// FormatRemaining renders a duration as "<h>h <m>m", truncating seconds.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// CheckWindow returns EditWindowExpiredError once the window has closed.
func (p EditPolicy) CheckWindow(gateEntryNo string, createdAt, now time.Time) error {
	if !p.CanEdit(createdAt, now) {
		return &EditWindowExpiredError{GateEntryNo: gateEntryNo, CreatedAt: createdAt, Window: p.Window}
	}
	return nil
}

// CheckOwnership allows the creator or any admin role.
func CheckOwnership(actor models.Actor, owner string) error {
	if actor.IsAdmin() {
		return nil
	}
	if strings.EqualFold(strings.TrimSpace(actor.Username), strings.TrimSpace(owner)) {
		return nil
	}
	return &OwnershipError{Username: actor.Username, Owner: owner}
}

// Authorize runs the window check then the ownership check.
func (p EditPolicy) Authorize(actor models.Actor, owner, gateEntryNo string, createdAt, now time.Time) error {
	if err := p.CheckWindow(gateEntryNo, createdAt, now); err != nil {
		return err
	}
	return CheckOwnership(actor, owner)
}

// CanActorEdit is the view-side combination of window and ownership.
func (p EditPolicy) CanActorEdit(actor models.Actor, owner string, createdAt, now time.Time) bool {
	return p.CanEdit(createdAt, now) && CheckOwnership(actor, owner) == nil
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// MissingOperationalFields lists blank operational fields in display order.
func MissingOperationalFields(m *models.GateMovement) []string {
	missing := []string{}
	for _, f := range m.OperationalFields() {
		if isBlank(f.Value) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func IsOperationalComplete(m *models.GateMovement) bool {
	return len(MissingOperationalFields(m)) == 0
}

// NormalizeVehicleNo trims, upper-cases and strips inner spaces.
func NormalizeVehicleNo(raw string) (string, error) {
	v := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if v == "" {
		return "", validationErr("vehicle_no", "vehicle number is required")
	}
	if !vehicleNoRegex.MatchString(v) {
		return "", validationErr("vehicle_no", "invalid vehicle number %q", raw)
	}
	return v, nil
}

func ValidateKMReading(raw string) (string, error) {
	km := strings.TrimSpace(raw)
	if !kmReadingRegex.MatchString(km) {
		return "", validationErr("km_reading", "KM reading must be 3-6 digits")
	}
	return km, nil
}

func ValidateDriverName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if len([]rune(name)) < 2 {
		return "", validationErr("driver_name", "driver name must be at least 2 characters")
	}
	return name, nil
}

// NormalizeLoaderNames splits on commas, trims, drops empties and re-joins
// with ", ". More than MaxLoaderNames names is rejected.
func NormalizeLoaderNames(raw string) (string, error) {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "", validationErr("loader_names", "at least one loader name is required")
	}
	if len(names) > MaxLoaderNames {
		return "", validationErr("loader_names", "maximum %d loader names allowed, got %d", MaxLoaderNames, len(names))
	}
	return strings.Join(names, ", "), nil
}

// normalizeOperational validates whichever operational fields are non-blank
// and returns them normalized. Blank fields come back nil.
func normalizeOperational(driver, km, loaders *string) (*string, *string, *string, error) {
	var outDriver, outKM, outLoaders *string
	if !isBlank(driver) {
		v, err := ValidateDriverName(*driver)
		if err != nil {
			return nil, nil, nil, err
		}
		outDriver = &v
	}
	if !isBlank(km) {
		v, err := ValidateKMReading(*km)
		if err != nil {
			return nil, nil, nil, err
		}
		outKM = &v
	}
	if !isBlank(loaders) {
		v, err := NormalizeLoaderNames(*loaders)
		if err != nil {
			return nil, nil, nil, err
		}
		outLoaders = &v
	}
	return outDriver, outKM, outLoaders, nil
}

// NormalizeMovementPatch drops unsupplied and blank fields, validates the
// rest and returns the names of the fields that will change.
func NormalizeMovementPatch(in models.MovementPatch) (models.MovementPatch, []string, error) {
	var out models.MovementPatch
	fields := []string{}

	if !isBlank(in.VehicleNo) {
		v, err := NormalizeVehicleNo(*in.VehicleNo)
		if err != nil {
			return out, nil, err
		}
		out.VehicleNo = &v
		fields = append(fields, "vehicle_no")
	}
	if !isBlank(in.Remarks) {
		v := strings.TrimSpace(*in.Remarks)
		out.Remarks = &v
		fields = append(fields, "remarks")
	}

	driver, km, loaders, err := normalizeOperational(in.DriverName, in.KMReading, in.LoaderNames)
	if err != nil {
		return out, nil, err
	}
	if driver != nil {
		out.DriverName = driver
		fields = append(fields, models.OperationalDriverName)
	}
	if km != nil {
		out.KMReading = km
		fields = append(fields, models.OperationalKMReading)
	}
	if loaders != nil {
		out.LoaderNames = loaders
		fields = append(fields, models.OperationalLoaders)
	}
	return out, fields, nil
}

// NormalizeRawMaterialPatch is NormalizeMovementPatch for raw material entries.
func NormalizeRawMaterialPatch(in models.RawMaterialPatch) (models.RawMaterialPatch, []string, error) {
	var out models.RawMaterialPatch
	fields := []string{}

	if !isBlank(in.VehicleNo) {
		v, err := NormalizeVehicleNo(*in.VehicleNo)
		if err != nil {
			return out, nil, err
		}
		out.VehicleNo = &v
		fields = append(fields, "vehicle_no")
	}

	trimmed := func(src *string, dst **string, name string) {
		if !isBlank(src) {
			v := strings.TrimSpace(*src)
			*dst = &v
			fields = append(fields, name)
		}
	}
	trimmed(in.DocumentNo, &out.DocumentNo, "document_no")
	trimmed(in.NameOfParty, &out.NameOfParty, "name_of_party")
	trimmed(in.DescriptionOfMaterial, &out.DescriptionOfMaterial, "description_of_material")
	trimmed(in.Quantity, &out.Quantity, "quantity")

	return out, fields, nil
}
