package models

// Route entry from the city's route list
type RouteSummary struct {
	ID   Key
	No   string
	Type string

	// False when the catalog gave no usable route number or id
	Valid bool
}
type RouteSummaryArray []RouteSummary

// Represents one route variant with its ordered stops
type RouteRecord struct {
	ID    Key       `json:"route_id"`
	No    string    `json:"route_no"`
	Stops StopArray `json:"stops"`
}
type RouteRecordMap map[Key]*RouteRecord

// Returns the node ids of the stops in order
func (r *RouteRecord) NodeIDs() KeyArray {
	ids := make(KeyArray, len(r.Stops))
	for i, stop := range r.Stops {
		ids[i] = stop.NodeID
	}
	return ids
}

// Returns a copy of the record with the given stops
func (r *RouteRecord) WithStops(stops StopArray) *RouteRecord {
	return &RouteRecord{
		ID:    r.ID,
		No:    r.No,
		Stops: stops,
	}
}
