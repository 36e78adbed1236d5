package models

// FlowKind identifies a conversation flow family.
type FlowKind string

const (
	FlowNone      FlowKind = ""
	FlowValuation FlowKind = "valuation"
	FlowBrowse    FlowKind = "browse"
	FlowTestDrive FlowKind = "test_drive"
	FlowContact   FlowKind = "contact"
	FlowAbout     FlowKind = "about"
)

// Step is a position inside a flow. The zero value is the idle state.
type Step string

// Idle states. They belong to no flow.
const (
	StepIdle          Step = ""
	StepMainMenu      Step = "main_menu"
	StepIntentClarify Step = "intent_clarify"
)

// Valuation steps, one per slot plus the terminal step.
const (
	StepValuationBrand     Step = "valuation_brand"
	StepValuationModel     Step = "valuation_model"
	StepValuationYear      Step = "valuation_year"
	StepValuationFuel      Step = "valuation_fuel"
	StepValuationKms       Step = "valuation_kms"
	StepValuationOwner     Step = "valuation_owner"
	StepValuationCondition Step = "valuation_condition"
	StepValuationName      Step = "valuation_name"
	StepValuationPhone     Step = "valuation_phone"
	StepValuationLocation  Step = "valuation_location"
	StepValuationComplete  Step = "valuation_complete"
)

// Browse steps.
const (
	StepBrowseBudget     Step = "browse_budget"
	StepBrowseType       Step = "browse_type"
	StepBrowseBrand      Step = "browse_brand"
	StepBrowseResults    Step = "browse_results"
	StepBrowseNoResults  Step = "browse_no_results"
	StepBrowseError      Step = "browse_error"
	StepBrowseChange     Step = "browse_change"
	StepBrowseCarDetails Step = "browse_car_selected"
)

// Test drive steps.
const (
	StepTestDriveDate         Step = "td_date"
	StepTestDriveTime         Step = "td_time"
	StepTestDriveName         Step = "td_name"
	StepTestDrivePhone        Step = "td_phone"
	StepTestDriveLicense      Step = "td_license"
	StepTestDriveLocationMode Step = "td_location_mode"
	StepTestDriveAddress      Step = "td_address"
	StepTestDriveConfirm      Step = "td_confirm"
	StepTestDriveComplete     Step = "td_complete"
)

// Contact steps.
const (
	StepContactMenu           Step = "contact_menu"
	StepContactCallbackTime   Step = "contact_callback_time"
	StepContactCallbackName   Step = "contact_callback_name"
	StepContactCallbackPhone  Step = "contact_callback_phone"
	StepContactCallbackReason Step = "contact_callback_reason"
	StepContactDone           Step = "contact_done"
)

// About steps.
const (
	StepAboutMenu Step = "about_menu"
)

// stepFlows is the explicit membership table from step to flow family.
var stepFlows = map[Step]FlowKind{
	StepValuationBrand:     FlowValuation,
	StepValuationModel:     FlowValuation,
	StepValuationYear:      FlowValuation,
	StepValuationFuel:      FlowValuation,
	StepValuationKms:       FlowValuation,
	StepValuationOwner:     FlowValuation,
	StepValuationCondition: FlowValuation,
	StepValuationName:      FlowValuation,
	StepValuationPhone:     FlowValuation,
	StepValuationLocation:  FlowValuation,
	StepValuationComplete:  FlowValuation,

	StepBrowseBudget:     FlowBrowse,
	StepBrowseType:       FlowBrowse,
	StepBrowseBrand:      FlowBrowse,
	StepBrowseResults:    FlowBrowse,
	StepBrowseNoResults:  FlowBrowse,
	StepBrowseError:      FlowBrowse,
	StepBrowseChange:     FlowBrowse,
	StepBrowseCarDetails: FlowBrowse,

	StepTestDriveDate:         FlowTestDrive,
	StepTestDriveTime:         FlowTestDrive,
	StepTestDriveName:         FlowTestDrive,
	StepTestDrivePhone:        FlowTestDrive,
	StepTestDriveLicense:      FlowTestDrive,
	StepTestDriveLocationMode: FlowTestDrive,
	StepTestDriveAddress:      FlowTestDrive,
	StepTestDriveConfirm:      FlowTestDrive,
	StepTestDriveComplete:     FlowTestDrive,

	StepContactMenu:           FlowContact,
	StepContactCallbackTime:   FlowContact,
	StepContactCallbackName:   FlowContact,
	StepContactCallbackPhone:  FlowContact,
	StepContactCallbackReason: FlowContact,
	StepContactDone:           FlowContact,

	StepAboutMenu: FlowAbout,
}

// Flow returns the flow family owning the step, or FlowNone for idle and unknown steps.
func (s Step) Flow() FlowKind {
	return stepFlows[s]
}

// IsIdle reports whether the step is one of the idle states.
func (s Step) IsIdle() bool {
	return s == StepIdle || s == StepMainMenu || s == StepIntentClarify
}

// IsValid reports whether the step is known.
func (s Step) IsValid() bool {
	if s.IsIdle() {
		return true
	}
	_, ok := stepFlows[s]
	return ok
}

// StepsOf returns every step that belongs to the given flow.
func StepsOf(flow FlowKind) []Step {
	var steps []Step
	for step, f := range stepFlows {
		if f == flow {
			steps = append(steps, step)
		}
	}
	return steps
}
