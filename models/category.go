package models

// Category is the department a report is routed to.
type Category string

const (
	CategoryRoadTraffic    Category = "Road & Traffic"
	CategoryGarbage        Category = "Garbage & Sanitation"
	CategoryWaterDrainage  Category = "Water & Drainage"
	CategoryElectricity    Category = "Electricity"
	CategoryStreetLighting Category = "Street Lighting"
	CategoryPublicSafety   Category = "Public Safety"
	CategoryParks          Category = "Parks & Recreation"

	// CategoryOther means the category could not be determined. Reports
	// classified as Other are always rejected.
	CategoryOther Category = "Other"
)

// Categories is the closed set of routable categories, in routing-table order.
var Categories = []Category{
	CategoryRoadTraffic,
	CategoryGarbage,
	CategoryWaterDrainage,
	CategoryElectricity,
	CategoryStreetLighting,
	CategoryPublicSafety,
	CategoryParks,
}

// IsRoutable reports whether c is one of the closed set of departments.
func (c Category) IsRoutable() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Urgency is the three-tier urgency assigned to accepted reports.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// Priority is derived from Urgency.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
)

// Status is the terminal state of a report.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// ReasonCode is the stable machine-checkable cause of a decision.
type ReasonCode string

const (
	ReasonAccepted              ReasonCode = "accepted"
	ReasonDescriptionRequired   ReasonCode = "description_required"
	ReasonCategoryUndetermined  ReasonCode = "category_undetermined"
	ReasonAbusiveLanguage       ReasonCode = "abusive_language"
	ReasonImageCategoryMismatch ReasonCode = "image_category_mismatch"
	ReasonDuplicate             ReasonCode = "duplicate"
	ReasonProcessingError       ReasonCode = "processing_error"
)
