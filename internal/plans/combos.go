package plans

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PlanScore is one scored plan available to a member.
type PlanScore struct {
	Plan  string  `json:"plan"`
	Score float64 `json:"score"`
}

// MemberScores holds the scored plans for one covered member.
type MemberScores struct {
	Name  string      `json:"name"`
	Plans []PlanScore `json:"plans"`
}

// LineItem is one policy within a package.
type LineItem struct {
	Type    string   `json:"type,omitempty"`
	Plan    string   `json:"plan"`
	Members []string `json:"members"`
	Score   float64  `json:"score"`
}

// Package is a set of policies covering a family, with its total score.
type Package struct {
	Items      []LineItem `json:"plans"`
	TotalScore float64    `json:"total_score"`
}

// PlanFor returns the item covering member.
func (p Package) PlanFor(member string) (LineItem, bool) {
	for _, item := range p.Items {
		for _, covered := range item.Members {
			if covered == member {
				return item, true
			}
		}
	}
	return LineItem{}, false
}

// BestIndividualCombo picks each member's highest-scoring plan. Members with
// no scored plans are left out. On equal scores the first plan wins.
func BestIndividualCombo(members []MemberScores) (Package, bool) {
	var pkg Package
	for _, member := range members {
		if len(member.Plans) == 0 {
			continue
		}
		best := member.Plans[0]
		for _, candidate := range member.Plans[1:] {
			if candidate.Score > best.Score {
				best = candidate
			}
		}
		pkg.Items = append(pkg.Items, LineItem{
			Type:    "Individual",
			Plan:    best.Plan,
			Members: []string{member.Name},
			Score:   best.Score,
		})
		pkg.TotalScore += best.Score
	}
	return pkg, len(pkg.Items) > 0
}

// BestHybrid picks the hybrid with the highest total score, preferring fewer
// policies on a tie.
func BestHybrid(hybrids []Package) (Package, bool) {
	var best Package
	found := false
	for _, candidate := range hybrids {
		if len(candidate.Items) == 0 {
			continue
		}
		if !found ||
			candidate.TotalScore > best.TotalScore ||
			(candidate.TotalScore == best.TotalScore && len(candidate.Items) < len(best.Items)) {
			best = candidate
			found = true
		}
	}
	return best, found
}

// NoPackagesMessage is shown when neither package can be built.
const NoPackagesMessage = "No combination packages could be generated"

// Summary is what the summary view renders for combination packages.
type Summary struct {
	BestIndividual *Package `json:"best_individual,omitempty"`
	BestHybrid     *Package `json:"best_hybrid,omitempty"`
	Members        []string `json:"members"`
	Message        string   `json:"message,omitempty"`
}

// Summarize pairs the best individual package with the best hybrid.
func Summarize(individual *Package, hybrids []Package) Summary {
	var s Summary
	if individual != nil && len(individual.Items) > 0 {
		s.BestIndividual = individual
	}
	if hybrid, ok := BestHybrid(hybrids); ok {
		s.BestHybrid = &hybrid
	}
	if s.BestIndividual == nil && s.BestHybrid == nil {
		s.Message = NoPackagesMessage
		return s
	}

	var packages []Package
	if s.BestIndividual != nil {
		packages = append(packages, *s.BestIndividual)
	}
	if s.BestHybrid != nil {
		packages = append(packages, *s.BestHybrid)
	}
	s.Members = Members(packages)
	return s
}

// Members lists every covered member across packages in first-seen order.
func Members(packages []Package) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, pkg := range packages {
		for _, item := range pkg.Items {
			for _, member := range item.Members {
				if _, ok := seen[member]; ok || member == "" {
					continue
				}
				seen[member] = struct{}{}
				out = append(out, member)
			}
		}
	}
	return out
}

// Combinations is the upstream scorer's output.
type Combinations struct {
	Ranked         []Package
	BestIndividual *Package
	Hybrids        []Package
}

// Packages returns what the package grid shows: ranked packages when there
// are any, else the best individual combo, else the hybrids.
func (c Combinations) Packages() []Package {
	if len(c.Ranked) > 0 {
		return c.Ranked
	}
	if c.BestIndividual != nil && len(c.BestIndividual.Items) > 0 {
		return []Package{*c.BestIndividual}
	}
	return c.Hybrids
}

// Summary summarizes the decoded combinations.
func (c Combinations) Summary() Summary {
	return Summarize(c.BestIndividual, c.Hybrids)
}

type rawPackage struct {
	Plans        []LineItem      `json:"plans"`
	Package      []LineItem      `json:"package"`
	TotalScore   json.RawMessage `json:"total_score"`
	Score        json.RawMessage `json:"score"`
	PackageScore json.RawMessage `json:"package_score"`
}

func (r rawPackage) toPackage() Package {
	items := r.Plans
	if len(items) == 0 {
		items = r.Package
	}
	pkg := Package{Items: items}
	for _, raw := range []json.RawMessage{r.TotalScore, r.Score, r.PackageScore} {
		if score, ok := parseScore(raw); ok {
			pkg.TotalScore = score
			break
		}
	}
	return pkg
}

// DecodeCombinations reads ranked_packages, best_individual_combo and
// hybrid_combos. Packages without plans are dropped.
func DecodeCombinations(data []byte) (Combinations, error) {
	var raw struct {
		Ranked         []rawPackage `json:"ranked_packages"`
		BestIndividual *rawPackage  `json:"best_individual_combo"`
		Hybrids        []rawPackage `json:"hybrid_combos"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Combinations{}, fmt.Errorf("decode combination packages: %w", err)
	}

	var out Combinations
	for _, r := range raw.Ranked {
		if pkg := r.toPackage(); len(pkg.Items) > 0 {
			out.Ranked = append(out.Ranked, pkg)
		}
	}
	if raw.BestIndividual != nil {
		if pkg := raw.BestIndividual.toPackage(); len(pkg.Items) > 0 {
			out.BestIndividual = &pkg
		}
	}
	for _, r := range raw.Hybrids {
		if pkg := r.toPackage(); len(pkg.Items) > 0 {
			out.Hybrids = append(out.Hybrids, pkg)
		}
	}
	return out, nil
}

// UnmarshalJSON accepts plan or plan_name, and members, covered_members or
// a single member. Scores may be numbers or numeric strings.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type           string          `json:"type"`
		Plan           string          `json:"plan"`
		PlanName       string          `json:"plan_name"`
		Members        []string        `json:"members"`
		CoveredMembers []string        `json:"covered_members"`
		Member         string          `json:"member"`
		Score          json.RawMessage `json:"score"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	l.Type = raw.Type
	l.Plan = strings.TrimSpace(raw.Plan)
	if l.Plan == "" {
		l.Plan = strings.TrimSpace(raw.PlanName)
	}
	switch {
	case len(raw.Members) > 0:
		l.Members = raw.Members
	case len(raw.CoveredMembers) > 0:
		l.Members = raw.CoveredMembers
	case strings.TrimSpace(raw.Member) != "":
		l.Members = []string{strings.TrimSpace(raw.Member)}
	}
	l.Score, _ = parseScore(raw.Score)
	return nil
}

func parseScore(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
