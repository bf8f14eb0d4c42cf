package domain

// metricCodes maps verbose report labels to canonical short codes, in the
// order the operator lists them in the report.
var metricCodes = []struct{ label, code string }{
	{"High Temperature - Boston", "HTB"},
	{"Dew Point - Boston", "DPB"},
	{"High Temperature - Hartford", "HTH"},
	{"Dew Point - Hartford", "DPH"},
	{"Total Capacity Supply Obligation (CSO)", "CSO"},
	{"Anticipated Cold Weather Outages", "ACWO"},
	{"Other Generation Outages", "OGO"},
	{"Anticipated De-List MW Offered", "ADMO"},
	{"Total Generation Available", "TGA"},
	{"Import at Time of Peak", "ITP"},
	{"Total Available Generation and Imports", "TAGI"},
	{"Projected Peak Load", "PPL"},
	{"Replacement Reserve Requirement", "RRR"},
	{"Required Reserve", "RR"},
	{"Required Reserve including Replacement", "RRIR"},
	{"Total Load plus Required Reserve", "TLRR"},
	{"Projected Surplus/(Deficiency)", "PS"},
	{"Available Demand Response Resources", "ADRR"},
	{"Available Real-Time Emergency Generation", "AREG"},
	{"Power Watch", "PWH"},
	{"Power Warning", "PWG"},
	{"Cold Weather Watch", "CWWH"},
	{"Cold Weather Warning", "CWWG"},
	{"Cold Weather Event", "CWE"},
}

// Canonical status codes.
const (
	StatusAbnormalConditions = "ACON"
	StatusMinGeneration      = "MGEN"
	StatusOP4Action1         = "OP41"
	StatusOP4Action2         = "OP42"
	StatusOP4Action3         = "OP43"
	StatusOP4Action4         = "OP44"
	StatusOP4Action5         = "OP45"

	// AbnormalColumn is the aggregate flag, true when any status is active.
	AbnormalColumn = "Abnormal"
)

var statusCodes = []struct{ label, code string }{
	{"M/LCC 2, Abnormal Conditions", StatusAbnormalConditions},
	{"Min Gen, Min Gen Emergency", StatusMinGeneration},
	{"OP4 Action 1, Power Caution", StatusOP4Action1},
	{"OP4 Action 2", StatusOP4Action2},
	{"OP4 Action 3", StatusOP4Action3},
	{"OP4 Action 4, Power Watch", StatusOP4Action4},
	{"OP4 Action 5", StatusOP4Action5},
}

var (
	metricByLabel = make(map[string]string, len(metricCodes))
	metricRank    = make(map[string]int, len(metricCodes))
	statusByLabel = make(map[string]string, len(statusCodes))
)

func init() {
	for i, m := range metricCodes {
		metricByLabel[m.label] = m.code
		metricRank[m.code] = i
	}
	for _, s := range statusCodes {
		statusByLabel[s.label] = s.code
	}
}

// CanonicalMetricCode returns the short code for a report label. Unknown
// labels are returned unchanged with ok=false.
func CanonicalMetricCode(label string) (code string, ok bool) {
	if code, ok := metricByLabel[label]; ok {
		return code, true
	}
	return label, false
}

// CanonicalStatusCode returns the short code for a status label. Unknown
// labels are returned unchanged with ok=false.
func CanonicalStatusCode(label string) (code string, ok bool) {
	if code, ok := statusByLabel[label]; ok {
		return code, true
	}
	return label, false
}

// MetricLabels returns the known report labels in report order.
func MetricLabels() []string {
	out := make([]string, len(metricCodes))
	for i, m := range metricCodes {
		out[i] = m.label
	}
	return out
}

// MetricCodes returns the known canonical metric codes in report order.
func MetricCodes() []string {
	out := make([]string, len(metricCodes))
	for i, m := range metricCodes {
		out[i] = m.code
	}
	return out
}

// StatusLabels returns the known status labels in canonical order.
func StatusLabels() []string {
	out := make([]string, len(statusCodes))
	for i, s := range statusCodes {
		out[i] = s.label
	}
	return out
}

// StatusCodes returns the canonical status codes in canonical order.
func StatusCodes() []string {
	out := make([]string, len(statusCodes))
	for i, s := range statusCodes {
		out[i] = s.code
	}
	return out
}
