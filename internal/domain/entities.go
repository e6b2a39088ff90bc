package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Restaurant is the root entity. Every other entity in this package is
// owned by (cascade-deletes with) a Restaurant.
type Restaurant struct {
	ID        ID
	Name      string
	Config    RestaurantConfig
	CreatedAt time.Time
}

// RestaurantConfig is the structured configuration map of §6. Recognized
// keys are exposed as typed fields; unrecognized keys fall back to the
// Extra map so the façade can round-trip values this core doesn't
// understand.
type RestaurantConfig struct {
	RoutingMode                RoutingMode
	MaxTablesPerWaiter         int
	RoutingEfficiencyWeight    float64
	RoutingWorkloadPenalty     float64
	RoutingTipPenalty          float64
	RoutingRecencyMinutes      float64
	RoutingRecencyPenaltyWeight float64
	AlertUnderstaffedThreshold float64
	AlertOverstaffedThreshold  float64
	Extra                      map[string]string
	Version                    int
}

// RoutingMode selects the Router branch of §4.7.
type RoutingMode string

const (
	RoutingModeSection  RoutingMode = "section"
	RoutingModeRotation RoutingMode = "rotation"
)

// DefaultRestaurantConfig returns the §4.7-step-3 default weights.
func DefaultRestaurantConfig() RestaurantConfig {
	return RestaurantConfig{
		RoutingMode:                 RoutingModeSection,
		MaxTablesPerWaiter:          5,
		RoutingEfficiencyWeight:     1.0,
		RoutingWorkloadPenalty:      3.0,
		RoutingTipPenalty:           2.0,
		RoutingRecencyMinutes:       5,
		RoutingRecencyPenaltyWeight: 1.5,
		AlertUnderstaffedThreshold:  0.85,
		AlertOverstaffedThreshold:   1.2,
		Extra:                       map[string]string{},
		Version:                     1,
	}
}

// Section is a named area inside a Restaurant; an ordered sequence of
// Tables.
type Section struct {
	ID           ID
	RestaurantID ID
	Name         string
	Position     int
}

// TableType is a Table's physical category.
type TableType string

const (
	TableTypeBooth TableType = "booth"
	TableTypeBar   TableType = "bar"
	TableTypeTable TableType = "table"
)

// TableLocation is a Table's physical location within the restaurant.
type TableLocation string

const (
	LocationInside  TableLocation = "inside"
	LocationOutside TableLocation = "outside"
	LocationPatio   TableLocation = "patio"
)

// TableState is a Table's occupancy state, per §3/§4.2.
type TableState string

const (
	TableClean       TableState = "clean"
	TableOccupied    TableState = "occupied"
	TableDirty       TableState = "dirty"
	TableReserved    TableState = "reserved"
	TableUnavailable TableState = "unavailable"
)

// Table is a physical seat group.
type Table struct {
	ID              ID
	RestaurantID    ID
	SectionID       ID
	Number          int // unique within restaurant
	Capacity        int // 1..20
	Type            TableType
	Location        TableLocation
	State           TableState
	StateConfidence float64 // 0..1
	StateUpdatedAt  time.Time
	CurrentVisitID  ID // NilID unless State == TableOccupied
	CreatedAt       time.Time
}

// StateSource identifies who/what produced a table state transition.
type StateSource string

const (
	SourceML     StateSource = "ml"
	SourceHost   StateSource = "host"
	SourceSystem StateSource = "system"
)

// TableStateLog is an append-only record of one accepted state change.
type TableStateLog struct {
	ID         ID
	TableID    ID
	Previous   TableState
	Next       TableState
	Confidence float64
	Source     StateSource
	// Attribution carries the ML model id, the host user id, or the
	// system operation name, depending on Source (§4.2).
	Attribution string
	Timestamp   time.Time
}

// WaiterRole is a staff member's functional role.
type WaiterRole string

const (
	RoleServer    WaiterRole = "server"
	RoleBartender WaiterRole = "bartender"
	RoleHost      WaiterRole = "host"
	RoleBusser    WaiterRole = "busser"
	RoleRunner    WaiterRole = "runner"
)

// WaiterTier is the coarse performance bucket derived from composite
// score percentiles.
type WaiterTier string

const (
	TierStrong     WaiterTier = "strong"
	TierStandard   WaiterTier = "standard"
	TierDeveloping WaiterTier = "developing"
)

// Waiter is a staff member.
type Waiter struct {
	ID           ID
	RestaurantID ID
	Name         string
	Role         WaiterRole
	Tier         WaiterTier
	CompositeScore float64 // 0..100
	SectionID    ID        // assigned section, for §4.7 section mode

	LifetimeShifts int
	LifetimeCovers int
	LifetimeTips   decimal.Decimal

	CreatedAt time.Time
}

// CanServeTables returns whether this waiter's role is eligible to serve
// tables under the Router (§4.7 step 2: hosts/bussers/runners excluded).
func (r WaiterRole) CanServeTables() bool {
	return r == RoleServer || r == RoleBartender
}

// ShiftStatus is a Shift's lifecycle state.
type ShiftStatus string

const (
	ShiftActive   ShiftStatus = "active"
	ShiftOnBreak  ShiftStatus = "on_break"
	ShiftEnded    ShiftStatus = "ended"
)

// Shift is a waiter work session.
type Shift struct {
	ID           ID
	RestaurantID ID
	WaiterID     ID
	Status       ShiftStatus

	TablesServed int
	Covers       int
	Tips         decimal.Decimal
	Sales        decimal.Decimal

	StartedAt time.Time
	EndedAt   *time.Time
}

// IsActive reports whether a shift is eligible to receive new parties
// (active or on_break both count as "has an active/on-break shift" per
// the router's waiter-selection invariant in §8).
func (s ShiftStatus) IsActive() bool {
	return s == ShiftActive || s == ShiftOnBreak
}

// WaitlistStatus is a WaitlistEntry's lifecycle state.
type WaitlistStatus string

const (
	WaitlistWaiting    WaitlistStatus = "waiting"
	WaitlistSeated     WaitlistStatus = "seated"
	WaitlistWalkedAway WaitlistStatus = "walked_away"
)

// TablePreference is the superset vocabulary adopted per spec.md's Open
// Question ({booth,bar,table,none} ∪ {booth,table,none}).
type TablePreference string

const (
	PreferBooth TablePreference = "booth"
	PreferBar   TablePreference = "bar"
	PreferTable TablePreference = "table"
	PreferNone  TablePreference = "none"
)

// LocationPreference mirrors TableLocation with a "none" option.
type LocationPreference string

const (
	PreferInside  LocationPreference = "inside"
	PreferOutside LocationPreference = "outside"
	PreferPatio   LocationPreference = "patio"
	PreferNoLoc   LocationPreference = "none"
)

// WaitlistEntry is a queued party.
type WaitlistEntry struct {
	ID                 ID
	RestaurantID       ID
	PartySize          int
	TablePreference    TablePreference
	LocationPreference LocationPreference
	HardPreference     bool // if true, PreferenceUnsatisfiable is possible
	Status             WaitlistStatus
	VisitID            ID // set once seated
	CreatedAt          time.Time
}

// Milestones holds the occupancy timestamps of a Visit.
type Milestones struct {
	Seated      time.Time
	FirstServed *time.Time
	Payment     *time.Time
	Cleared     *time.Time
}

// Money holds a Visit's monetary breakdown.
type Money struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
	Tip      decimal.Decimal
	TipPct   decimal.Decimal // computed once Total and Tip are set
}

// Visit is a table occupancy.
type Visit struct {
	ID              ID
	RestaurantID    ID
	TableID         ID
	WaiterID        ID
	OriginalWaiterID ID // set on waiter transfer
	WaitlistEntryID ID  // NilID if walk-in

	PartySize    int
	ActualCovers int

	Milestones Milestones
	Money      Money
	Duration   *time.Duration // computed when Cleared is set

	CreatedAt time.Time
}

// IsOpen reports whether the visit has not yet been cleared.
func (v *Visit) IsOpen() bool {
	return v.Milestones.Cleared == nil
}

// Camera registers one video source and its current crop mapping.
type Camera struct {
	ID              ID
	RestaurantID    ID
	VideoSourceURI  string
	CropJSON        *CropJSON
	LastCaptureAt   time.Time
	LastFrameIndex  int64
	Degraded        bool
	DegradedReason  string
	CreatedAt       time.Time
}

// CropJSON is the per-camera metadata of §6 describing table bounding
// boxes in a frame. UnknownFields preserves top-level keys this core
// does not interpret, per §6's "unknown top-level fields are preserved".
type CropJSON struct {
	FrameWidth  int
	FrameHeight int
	Tables      []CropTableSpec
	UnknownFields map[string]interface{}
}

// CropTableSpec describes one table's bounding box within a CropJSON.
type CropTableSpec struct {
	JSONTableID string // id:int|string in the wire format, normalized to string
	RotatedBBox RotatedBBox
	CropFile    string
	CropWidth   int
	CropHeight  int
	// TableID is the physical Table this json-table-id resolves to, set
	// per-camera on crop-JSON installation (§6). Nil (IsNil()) until an
	// operator maps it, in which case the classifier result is dropped.
	TableID ID
}

// RotatedBBox is a rotated rectangle: center, size, angle, and the four
// corner points (redundant with center/size/angle but carried verbatim
// from the wire format for fidelity).
type RotatedBBox struct {
	CenterX, CenterY float64
	Width, Height    float64
	AngleDegrees     float64
	Corners          [4][2]float64
}

// DispatchStatus is a CropDispatchLog row's lifecycle state.
type DispatchStatus string

const (
	DispatchQueued     DispatchStatus = "queued"
	DispatchDispatched DispatchStatus = "dispatched"
	DispatchSucceeded  DispatchStatus = "succeeded"
	DispatchFailed     DispatchStatus = "failed"
)

// CropDispatchLog is the idempotence record for one classifier dispatch
// attempt, uniquely keyed by (CameraID, JSONTableID, FrameIndex).
type CropDispatchLog struct {
	ID          ID
	CameraID    ID
	JSONTableID string
	FrameIndex  int64
	Status      DispatchStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AvailabilityType is a StaffAvailability window's kind.
type AvailabilityType string

const (
	AvailAvailable   AvailabilityType = "available"
	AvailUnavailable AvailabilityType = "unavailable"
	AvailPreferred   AvailabilityType = "preferred"
)

// StaffAvailability is one recurring weekly window for a waiter.
type StaffAvailability struct {
	ID            ID
	WaiterID      ID
	DayOfWeek     int // 0..6
	StartMinute   int // minutes since midnight
	EndMinute     int
	Type          AvailabilityType
	EffectiveFrom time.Time
	EffectiveTo   *time.Time
}

// ShiftType is a coarse time-of-day bucket used for preference matching.
type ShiftType string

const (
	ShiftMorning   ShiftType = "morning"
	ShiftAfternoon ShiftType = "afternoon"
	ShiftEvening   ShiftType = "evening"
	ShiftClosing   ShiftType = "closing"
)

// StaffPreference is one per waiter.
type StaffPreference struct {
	WaiterID         ID
	PreferredRoles   []WaiterRole
	PreferredShifts  []ShiftType
	PreferredSections []ID
	MaxHoursPerWeek  float64
	MinHoursPerWeek  float64
	MaxShiftsPerWeek int
	AvoidClopening   bool
}

// StaffingRequirement is one demand slot a schedule must try to fill.
type StaffingRequirement struct {
	ID           ID
	RestaurantID ID
	DayOfWeek    int
	StartMinute  int
	EndMinute    int
	Role         WaiterRole
	Min          int
	Max          int
	IsPrimeShift bool
}

// ScheduleStatus is a Schedule's lifecycle state.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "draft"
	SchedulePublished ScheduleStatus = "published"
	ScheduleArchived  ScheduleStatus = "archived"
)

// GeneratedBy identifies how a Schedule's items were produced.
type GeneratedBy string

const (
	GeneratedManual     GeneratedBy = "manual"
	GeneratedEngine     GeneratedBy = "engine"
	GeneratedSuggestion GeneratedBy = "suggestion"
)

// Schedule is a weekly container for ScheduleItems.
type Schedule struct {
	ID           ID
	RestaurantID ID
	WeekStart    time.Time // Monday 00:00 of the target week
	Version      int
	Status       ScheduleStatus
	GeneratedBy  GeneratedBy
	CreatedAt    time.Time
}

// ScheduleItem is one waiter-shift assignment within a Schedule.
type ScheduleItem struct {
	ID                   ID
	ScheduleID           ID
	WaiterID             ID
	Role                 WaiterRole
	SectionID            ID
	Date                 time.Time
	StartMinute          int
	EndMinute            int
	Source               GeneratedBy
	PreferenceMatchScore float64 // 0..100
	FairnessImpactScore  float64 // signed
}

// ScheduleReasoning is one per ScheduleItem.
type ScheduleReasoning struct {
	ID             ID
	ScheduleItemID ID
	Lines          []string // structured rationale lines (§4.11 step 6)
	LLMParagraph   string   // optional, external collaborator (§9)
}

// ScheduleRunStatus is a scheduling run's terminal state.
type ScheduleRunStatus string

const (
	RunCompleted ScheduleRunStatus = "completed"
	RunFailed    ScheduleRunStatus = "failed"
)

// ScheduleRun is the persisted record backing one C11 `run` invocation.
type ScheduleRun struct {
	ID                ID
	RestaurantID      ID
	ScheduleID        ID
	SnapshotID        ID
	Status            ScheduleRunStatus
	ErrorMessage      string
	ItemsCreated      int
	TotalHours        float64
	CoveragePct       float64
	FairnessGini      float64
	PreferenceAvg     float64
	ForecastTrend     string
	UnderstaffedSlots int
	StartedAt         time.Time
	FinishedAt        time.Time
}
