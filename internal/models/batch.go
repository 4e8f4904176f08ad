package models

// BatchSelection is the raw user input for batch and single modes:
// which dates and which services to process.
type BatchSelection struct {
	Dates      []string `json:"dates" validate:"required,min=1,dive,required"`
	ServiceIDs []string `json:"service_ids" validate:"required,min=1,dive,required"`
}

// ServiceCombination is one concrete (date, service) unit of work after
// expansion against the service registry.
type ServiceCombination struct {
	Date        string `json:"date"`
	ServiceID   string `json:"service_id"`
	ServiceName string `json:"service_name"`
	ServiceTime string `json:"service_time"`
}

// DateRange spans the selected dates, both bounds inclusive, in
// YYYY-MM-DD form.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// BatchQuery is the validated, deduplicated expansion of a selection.
// Transient: built per workflow creation, never persisted as its own
// entity. MissingCombinations lists (date, service) pairs the registry
// had no active entry for; they are skipped, not fatal.
type BatchQuery struct {
	Combinations        []ServiceCombination `json:"combinations"`
	DateRange           DateRange            `json:"date_range"`
	TotalServices       int                  `json:"total_services"`
	MissingCombinations []string             `json:"missing_combinations,omitempty"`
}
