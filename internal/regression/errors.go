package regression

import "fmt"

// InsufficientDataError indicates a series too short to fit a line.
type InsufficientDataError struct {
	Country string
	Points  int
}

func (e *InsufficientDataError) Error() string {
	if e.Country == "" {
		return fmt.Sprintf("insufficient data: %d point(s), need at least %d", e.Points, MinPoints)
	}
	return fmt.Sprintf("insufficient data for %s: %d point(s), need at least %d", e.Country, e.Points, MinPoints)
}

// DegenerateFitError indicates training dates with zero variance.
type DegenerateFitError struct {
	Country string
	X       int
}

func (e *DegenerateFitError) Error() string {
	where := ""
	if e.Country != "" {
		where = " for " + e.Country
	}
	return fmt.Sprintf("degenerate fit%s: every training point has date offset %d", where, e.X)
}
