// Package merge combines sweep and probe records into one record per address.
//
// For every field the merged value is the best candidate across all records
// of an address: known beats unknown beats absent, then the more specific
// source wins (probe over sweep), then the more detailed value. Because the
// choice is made over the whole group at once, the result does not depend on
// argument or record order.
package merge

import (
	"cmp"
	"net/netip"
	"slices"
	"strings"

	"lanwatch/internal/domain"
)

// Records merges sweep and probe records keyed by address. The output holds
// exactly one record per address and is sorted by address.
func Records(sweep, probes []domain.RawRecord) []domain.RawRecord {
	groups := make(map[netip.Addr][]domain.RawRecord, len(sweep)+len(probes))
	for _, set := range [][]domain.RawRecord{sweep, probes} {
		for _, r := range set {
			if !r.Address.IsValid() {
				continue
			}
			groups[r.Address] = append(groups[r.Address], r)
		}
	}

	out := make([]domain.RawRecord, 0, len(groups))
	for _, group := range groups {
		out = append(out, Combine(group...))
	}
	slices.SortFunc(out, func(a, b domain.RawRecord) int { return a.Address.Compare(b.Address) })
	return out
}

// Merge combines two records of the same address
func Merge(a, b domain.RawRecord) domain.RawRecord {
	return Combine(a, b)
}

// Combine merges records that share an address. The first record's address
// is used for the result.
func Combine(records ...domain.RawRecord) domain.RawRecord {
	if len(records) == 0 {
		return domain.RawRecord{}
	}
	if len(records) == 1 {
		return records[0]
	}

	out := domain.RawRecord{Address: records[0].Address}
	for _, r := range records {
		if r.Source.Rank() > out.Source.Rank() {
			out.Source = r.Source
		}
	}

	out.HardwareAddr = pick(records, func(r domain.RawRecord) domain.Field[string] { return r.HardwareAddr }, compareStrings)
	out.Hostname = pick(records, func(r domain.RawRecord) domain.Field[string] { return r.Hostname }, compareStrings)
	out.VendorHint = pick(records, func(r domain.RawRecord) domain.Field[string] { return r.VendorHint }, compareStrings)
	out.OSFingerprint = pick(records, func(r domain.RawRecord) domain.Field[domain.OSFingerprint] { return r.OSFingerprint }, compareFingerprints)
	out.OpenPorts = mergePorts(records)
	out.Outcome = mergeOutcome(records)
	return out
}

// pick returns the best field across records. Fields are ordered by state,
// then by the rank of the record's source, then by better.
func pick[T any](records []domain.RawRecord, get func(domain.RawRecord) domain.Field[T], better func(a, b T) int) domain.Field[T] {
	var (
		best     domain.Field[T]
		bestRank int
	)
	for i, r := range records {
		f := get(r)
		rank := r.Source.Rank()
		if i == 0 {
			best, bestRank = f, rank
			continue
		}
		if c := compareFields(f, rank, best, bestRank, better); c > 0 {
			best, bestRank = f, rank
		}
	}
	return best
}

func compareFields[T any](a domain.Field[T], rankA int, b domain.Field[T], rankB int, better func(a, b T) int) int {
	if c := cmp.Compare(a.State(), b.State()); c != 0 {
		return c
	}
	if !a.IsKnown() {
		return 0
	}
	if c := cmp.Compare(rankA, rankB); c != 0 {
		return c
	}
	va, _ := a.Get()
	vb, _ := b.Get()
	return better(va, vb)
}

// compareStrings prefers the longer value, then the lexicographically smaller
func compareStrings(a, b string) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(b, a)
}

// compareFingerprints prefers more candidates, then higher accuracy, then
// falls back to a fixed ordering over the remaining fields
func compareFingerprints(a, b domain.OSFingerprint) int {
	if c := cmp.Compare(len(a.Names()), len(b.Names())); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Accuracy, b.Accuracy); c != 0 {
		return c
	}
	if c := compareStrings(a.Name, b.Name); c != 0 {
		return c
	}
	if c := compareStrings(strings.Join(a.Candidates, "\x00"), strings.Join(b.Candidates, "\x00")); c != 0 {
		return c
	}
	if c := compareStrings(a.Vendor, b.Vendor); c != 0 {
		return c
	}
	return compareStrings(a.Source, b.Source)
}

// mergePorts takes the known port sets of the highest ranked source and
// unions them. An empty known set still beats unknown.
func mergePorts(records []domain.RawRecord) domain.Field[domain.PortSet] {
	var (
		best     domain.Field[domain.PortSet]
		bestRank int
	)
	for _, r := range records {
		f, rank := r.OpenPorts, r.Source.Rank()
		switch {
		case f.State() > best.State():
			best, bestRank = f, rank
		case f.State() < best.State() || !f.IsKnown():
		case rank > bestRank:
			best, bestRank = f, rank
		case rank == bestRank:
			cur, _ := best.Get()
			next, _ := f.Get()
			if !slices.Equal(cur, next) {
				best = domain.Known(cur.Union(next))
			}
		}
	}
	return best
}

// outcomePrecedence orders outcomes when sources of equal rank disagree
var outcomePrecedence = map[domain.ProbeOutcome]int{
	domain.OutcomeHostIsSelf:  4,
	domain.OutcomeSucceeded:   3,
	domain.OutcomeUnreachable: 2,
	domain.OutcomeTimedOut:    1,
}

// mergeOutcome takes the outcome of the highest ranked source that has one
func mergeOutcome(records []domain.RawRecord) domain.ProbeOutcome {
	var (
		best     domain.ProbeOutcome
		bestRank int
	)
	for _, r := range records {
		if r.Outcome == "" {
			continue
		}
		rank := r.Source.Rank()
		switch {
		case best == "", rank > bestRank:
			best, bestRank = r.Outcome, rank
		case rank == bestRank && outcomePrecedence[r.Outcome] > outcomePrecedence[best]:
			best = r.Outcome
		}
	}
	return best
}
