package power

import "strings"

// Governor is the scaling governor, resolved once from its sysfs name.
type Governor int

const (
	GovernorOther Governor = iota
	GovernorOndemand
	GovernorInteractive
	GovernorMSMDCVS
	GovernorSched
)

const (
	ondemandGovernor    = "ondemand"
	interactiveGovernor = "interactive"
	msmDCVSGovernor     = "msm-dcvs"
	schedGovernor       = "sched"
)

// Family groups governors by the interaction boost profile they take.
type Family int

const (
	FamilyHMP Family = iota
	FamilyEAS
)

// ParseGovernor maps a governor name to a Governor. Any name starting with
// "sched" (sched, schedutil) is the EAS scheduler.
func ParseGovernor(name string) Governor {
	name = strings.TrimSpace(name)

	switch name {
	case ondemandGovernor:
		return GovernorOndemand
	case interactiveGovernor:
		return GovernorInteractive
	case msmDCVSGovernor:
		return GovernorMSMDCVS
	}

	if strings.HasPrefix(name, schedGovernor) {
		return GovernorSched
	}

	return GovernorOther
}

func (g Governor) Family() Family {
	if g == GovernorSched {
		return FamilyEAS
	}

	return FamilyHMP
}

func (g Governor) String() string {
	switch g {
	case GovernorOndemand:
		return ondemandGovernor
	case GovernorInteractive:
		return interactiveGovernor
	case GovernorMSMDCVS:
		return msmDCVSGovernor
	case GovernorSched:
		return schedGovernor
	default:
		return "other"
	}
}

func (f Family) String() string {
	if f == FamilyEAS {
		return "eas"
	}

	return "hmp"
}
