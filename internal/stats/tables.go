package stats

// Statistics file locations. Overridable at build time with
// -ldflags "-X codeberg.org/mutker/socpowerd/internal/stats.PlatformPath=..."
// and at run time through configuration.
var (
	PlatformPath = "/d/system_stats"
	WLANPath     = "/d/wlan0/power_stats"
)

// Platform RPM groups.
const (
	RPMModeXO = iota
	RPMModeVMin
	VoterAPSS
	VoterMPSS
	VoterADSP
	VoterSLPI

	PlatformGroupCount
)

// WLAN groups.
const (
	WLANPowerDebugStats = iota

	WLANGroupCount
)

const (
	PlatformStride = 2
	WLANStride     = 4
)

var (
	rpmParams    = []string{"count", "actual last sleep(msec)"}
	masterParams = []string{"Accumulated XO duration", "XO Count"}
	wlanParams   = []string{
		"cumulative_sleep_time_ms",
		"cumulative_total_on_time_ms",
		"deep_sleep_enter_counter",
		"last_deep_sleep_enter_tstamp_ms",
	}
)

// PlatformTable returns the RPM low power mode and voter table read from path.
// An empty path selects PlatformPath.
func PlatformTable(path string) Table {
	if path == "" {
		path = PlatformPath
	}

	return Table{
		Name:   "platform",
		Path:   path,
		Stride: PlatformStride,
		Groups: []Group{
			{ID: RPMModeXO, Label: "RPM Mode:vlow", Params: rpmParams},
			{ID: RPMModeVMin, Label: "RPM Mode:vmin", Params: rpmParams},
			{ID: VoterAPSS, Label: "APSS", Params: masterParams},
			{ID: VoterMPSS, Label: "MPSS", Params: masterParams},
			{ID: VoterADSP, Label: "ADSP", Params: masterParams},
			{ID: VoterSLPI, Label: "SLPI", Params: masterParams},
		},
	}
}

// WLANTable returns the WLAN power debug table read from path. An empty path
// selects WLANPath.
func WLANTable(path string) Table {
	if path == "" {
		path = WLANPath
	}

	return Table{
		Name:   "wlan",
		Path:   path,
		Stride: WLANStride,
		Groups: []Group{
			{ID: WLANPowerDebugStats, Label: "POWER DEBUG STATS", Params: wlanParams},
		},
	}
}

// Size is the Result length the table needs.
func (t Table) Size() int {
	n := 0
	for _, g := range t.Groups {
		if g.ID+1 > n {
			n = g.ID + 1
		}
	}

	return n * t.Stride
}
