package domain

import (
	"path"
	"regexp"
	"sort"
	"time"
)

var (
	// archiveIDRe matches the archive download link form, e.g.
	// "/transform/csv/sdf?start=20220103&version=20220103094512345".
	archiveIDRe = regexp.MustCompile(`[?&]start=(\d{8})(?:&version=(\d+))?$`)

	// fileIDRe matches content-store file names, e.g. "20220103_20220103094512345.txt".
	fileIDRe = regexp.MustCompile(`^(\d{8})(?:[_-]v?(\d+))?\.[A-Za-z0-9]+$`)
)

const versionDigits = 17

// Resolution is the outcome of resolving a listing of report identifiers.
type Resolution struct {
	Selected   []ReportRef // one authoritative version per report date, ascending
	Superseded []ReportRef // older versions of a selected report date
	Failures   []error     // *SourceParseError per rejected identifier
}

// ParseReportID extracts the report date and optional version from an identifier.
func ParseReportID(id string) (ReportRef, error) {
	var date, version string
	if m := archiveIDRe.FindStringSubmatch(id); m != nil {
		date, version = m[1], m[2]
	} else if m := fileIDRe.FindStringSubmatch(path.Base(id)); m != nil {
		date, version = m[1], m[2]
	} else {
		return ReportRef{}, &SourceParseError{ID: id, Reason: "no report date in identifier"}
	}

	reportDate, err := time.Parse("20060102", date)
	if err != nil {
		return ReportRef{}, &SourceParseError{ID: id, Reason: "invalid report date", Err: err}
	}
	if version != "" && len(version) != versionDigits {
		return ReportRef{}, &SourceParseError{ID: id, Reason: "version timestamp is not 17 digits"}
	}

	return ReportRef{ID: id, ReportDate: reportDate, Version: version}, nil
}

// LatestVersion selects the authoritative candidate for one report date.
// A single candidate is returned as is, whether or not it carries a version.
// Fixed-width versions compare lexically in the same order as numerically.
func LatestVersion(candidates []ReportRef) ReportRef {
	if len(candidates) == 1 {
		return candidates[0]
	}
	latest := candidates[0]
	for _, c := range candidates[1:] {
		if c.Version > latest.Version {
			latest = c
		}
	}
	return latest
}

// ResolveReports parses, groups and resolves a listing of identifiers.
func ResolveReports(ids []string) Resolution {
	var res Resolution

	groups := make(map[time.Time][]ReportRef)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		ref, err := ParseReportID(id)
		if err != nil {
			res.Failures = append(res.Failures, err)
			continue
		}
		groups[ref.ReportDate] = append(groups[ref.ReportDate], ref)
	}

	for _, group := range groups {
		candidates := group
		if len(group) > 1 {
			candidates = candidates[:0:0]
			for _, ref := range group {
				if ref.Version == "" {
					res.Failures = append(res.Failures, &SourceParseError{
						ID:     ref.ID,
						Reason: "missing version among duplicate reports for " + FormatDate(ref.ReportDate),
					})
					continue
				}
				candidates = append(candidates, ref)
			}
			if len(candidates) == 0 {
				continue
			}
		}

		latest := LatestVersion(candidates)
		res.Selected = append(res.Selected, latest)
		for _, ref := range candidates {
			if ref.ID != latest.ID {
				res.Superseded = append(res.Superseded, ref)
			}
		}
	}

	sortRefs(res.Selected)
	sortRefs(res.Superseded)
	return res
}

func sortRefs(refs []ReportRef) {
	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].ReportDate.Equal(refs[j].ReportDate) {
			return refs[i].ReportDate.Before(refs[j].ReportDate)
		}
		if refs[i].Version != refs[j].Version {
			return refs[i].Version < refs[j].Version
		}
		return refs[i].ID < refs[j].ID
	})
}
