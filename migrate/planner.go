package migrate

import (
	"fmt"
	"strings"
	"time"

	"github.com/stratumdb/stratum/internal/sqlparse"
)

// Plan is the derived execution order for the pending set, plus advisory
// warnings and validation issues. Never persisted; recomputed per call.
type Plan struct {
	// Order lists pending migrations in a dependency-respecting sequence.
	// Ties between unrelated migrations keep the input order.
	Order []*Migration

	// Dependencies maps each ordered version to its declared dependencies.
	Dependencies map[string][]string

	// Warnings are advisory: missing rollback SQL, oversized bodies,
	// destructive statements.
	Warnings []string

	// Issues are validation failures. A migration with an issue is
	// excluded from Order.
	Issues []Issue

	// EstimatedTime is a coarse heuristic, never used to gate execution.
	EstimatedTime time.Duration
}

// Versions returns the ordered version strings.
func (p *Plan) Versions() []string {
	versions := make([]string, len(p.Order))
	for i, m := range p.Order {
		versions[i] = m.Version
	}
	return versions
}

// Issue is a validation failure that excludes one migration from the plan.
type Issue struct {
	// Code is "dependency_missing": the migration depends on a version
	// that is neither pending nor applied, possibly because that version
	// was itself excluded.
	Code       string `json:"code"`
	Version    string `json:"version"`
	Dependency string `json:"dependency"`
	Message    string `json:"message"`
}

const largeBodyChars = 50000

const (
	estimateBase     = 500 * time.Millisecond
	estimatePerChunk = time.Millisecond // per 100 characters of body
)

// EstimateDuration is a coarse per-migration cost heuristic: a fixed base
// plus a charge per 100 characters of body. Advisory only.
func EstimateDuration(m *Migration) time.Duration {
	return estimateBase + time.Duration(len(m.SQL)/100)*estimatePerChunk
}

// BuildPlan computes the execution order for every known migration not yet
// in applied. Migrations whose dependencies cannot be satisfied are
// excluded from the order and reported as Issues; a dependency cycle is
// fatal and returns ErrCircularDependency naming the cycle.
//
// Ties between unrelated migrations follow the input order, so callers
// wanting determinism across runs should pass migrations sorted by version.
func BuildPlan(migrations []*Migration, applied map[string]bool) (*Plan, error) {
	plan := &Plan{Dependencies: make(map[string][]string)}

	var pending []*Migration
	byVersion := make(map[string]*Migration)
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if _, dup := byVersion[m.Version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s", m.Version)
		}
		pending = append(pending, m)
		byVersion[m.Version] = m
	}

	excluded := validateDependencies(pending, byVersion, applied, plan)

	order, err := sortByDependencies(pending, byVersion, excluded)
	if err != nil {
		return nil, err
	}

	for _, m := range order {
		if len(m.DependsOn) > 0 {
			plan.Dependencies[m.Version] = m.DependsOn
		}
		if !m.CanRollback() {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("migration %s has no rollback SQL", m.Version))
		}
		if len(m.SQL) > largeBodyChars {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("migration %s body is %d characters, consider splitting it", m.Version, len(m.SQL)))
		}
		for _, finding := range sqlparse.Destructive(m.SQL) {
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("migration %s: %s", m.Version, finding.Message))
		}
		for _, adv := range sqlparse.AnalyzeLocks(m.SQL) {
			if adv.Impact < sqlparse.ImpactMedium {
				continue
			}
			blocks := "blocks writes"
			if adv.BlocksReads {
				blocks = "blocks reads and writes"
			}
			plan.Warnings = append(plan.Warnings,
				fmt.Sprintf("migration %s: line %d acquires %s, %s", m.Version, adv.Line, adv.Mode, blocks))
		}
		plan.EstimatedTime += EstimateDuration(m)
	}

	plan.Order = order
	return plan, nil
}

// validateDependencies excludes migrations whose dependencies resolve to
// neither a pending nor an applied version, cascading to migrations that
// depend on an excluded one. Each exclusion is reported once.
func validateDependencies(pending []*Migration, byVersion map[string]*Migration, applied map[string]bool, plan *Plan) map[string]bool {
	excluded := make(map[string]bool)

	for changed := true; changed; {
		changed = false
		for _, m := range pending {
			if excluded[m.Version] {
				continue
			}
			for _, dep := range m.DependsOn {
				if applied[dep] {
					continue
				}
				if _, pendingDep := byVersion[dep]; pendingDep && !excluded[dep] {
					continue
				}

				issue := Issue{
					Code:       "dependency_missing",
					Version:    m.Version,
					Dependency: dep,
				}
				if excluded[dep] {
					issue.Message = fmt.Sprintf("migration %s depends on %s, which cannot run", m.Version, dep)
				} else {
					issue.Message = fmt.Sprintf("migration %s depends on unknown version %s", m.Version, dep)
				}
				plan.Issues = append(plan.Issues, issue)
				excluded[m.Version] = true
				changed = true
				break
			}
		}
	}

	return excluded
}

const (
	markUnvisited = iota
	markVisiting
	markVisited
)

// sortByDependencies is a depth-first topological sort over the pending
// set, run on an explicit stack so migration count never bounds recursion
// depth. Dependencies that are applied or excluded are not followed; nodes
// are emitted post-order, after everything they depend on.
func sortByDependencies(pending []*Migration, byVersion map[string]*Migration, excluded map[string]bool) ([]*Migration, error) {
	type frame struct {
		m    *Migration
		next int // index of the next dependency to follow
	}

	marks := make(map[string]int, len(pending))
	order := make([]*Migration, 0, len(pending))

	for _, root := range pending {
		if excluded[root.Version] || marks[root.Version] != markUnvisited {
			continue
		}

		stack := []frame{{m: root}}
		marks[root.Version] = markVisiting

		for len(stack) > 0 {
			top := &stack[len(stack)-1]

			if top.next < len(top.m.DependsOn) {
				depVersion := top.m.DependsOn[top.next]
				top.next++

				dep, pendingDep := byVersion[depVersion]
				if !pendingDep || excluded[depVersion] {
					continue
				}

				switch marks[dep.Version] {
				case markVisiting:
					var path []string
					for i := range stack {
						if len(path) > 0 || stack[i].m.Version == depVersion {
							path = append(path, stack[i].m.Version)
						}
					}
					path = append(path, depVersion)
					return nil, fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(path, " -> "))
				case markUnvisited:
					marks[dep.Version] = markVisiting
					stack = append(stack, frame{m: dep})
				}
				continue
			}

			marks[top.m.Version] = markVisited
			order = append(order, top.m)
			stack = stack[:len(stack)-1]
		}
	}

	return order, nil
}
