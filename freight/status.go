package freight

// =============================================================================
// STATUS ENUMERATIONS
// =============================================================================
// The string values are the persisted labels; they are part of the external
// contract of the store.

type TripStatus string

const (
	TripScheduled  TripStatus = "Programado"
	TripInProgress TripStatus = "EnCurso"
	TripCompleted  TripStatus = "Completado"
	TripCancelled  TripStatus = "Cancelado"
)

func (s TripStatus) Valid() bool {
	switch s {
	case TripScheduled, TripInProgress, TripCompleted, TripCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s TripStatus) Terminal() bool {
	return s == TripCompleted || s == TripCancelled
}

type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "Activo"
	VehicleMaintenance VehicleStatus = "Mantenimiento"
	VehicleInactive    VehicleStatus = "Inactivo"
	VehicleInUse       VehicleStatus = "EnUso"
)

func (s VehicleStatus) Valid() bool {
	switch s {
	case VehicleActive, VehicleMaintenance, VehicleInactive, VehicleInUse:
		return true
	}
	return false
}

type DriverStatus string

const (
	DriverActive    DriverStatus = "Activo"
	DriverInactive  DriverStatus = "Inactivo"
	DriverSuspended DriverStatus = "Suspendido"
)

func (s DriverStatus) Valid() bool {
	switch s {
	case DriverActive, DriverInactive, DriverSuspended:
		return true
	}
	return false
}

type ClientStatus string

const (
	ClientActive   ClientStatus = "Activo"
	ClientInactive ClientStatus = "Inactivo"
)

func (s ClientStatus) Valid() bool {
	return s == ClientActive || s == ClientInactive
}

// =============================================================================
// TRIP STATE MACHINE
// =============================================================================

// tripTransitions lists the legal status changes. Staying in the same
// status is always allowed (plain edits).
var tripTransitions = map[TripStatus][]TripStatus{
	TripScheduled:  {TripInProgress, TripCancelled},
	TripInProgress: {TripCompleted, TripCancelled},
	TripCompleted:  nil,
	TripCancelled:  nil,
}

// CanTransition reports whether a trip may move from one status to another.
func CanTransition(from, to TripStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range tripTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transitions returns the statuses reachable from s in one step.
func Transitions(s TripStatus) []TripStatus {
	return append([]TripStatus(nil), tripTransitions[s]...)
}
