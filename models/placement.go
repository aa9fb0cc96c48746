package models

// Placement is one pilot's final standing. Pilots eliminated in the same
// phase share the range PlaceFrom..PlaceTo; the top four have PlaceFrom ==
// PlaceTo. Pilots withdrawn before the start have no range (both zero).
type Placement struct {
	PilotID   string      `json:"pilot_id"`
	PilotName string      `json:"pilot_name"`
	PlaceFrom int         `json:"place_from"`
	PlaceTo   int         `json:"place_to"`
	Phase     string      `json:"phase"`
	Status    PilotStatus `json:"status"`
}

func (p Placement) IsExact() bool {
	return p.PlaceFrom != 0 && p.PlaceFrom == p.PlaceTo
}
