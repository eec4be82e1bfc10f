package dataset

import "fmt"

// DataFormatError indicates the source could not be read or lacks a required column.
type DataFormatError struct {
	Source string
	Reason string
	Err    error
}

func (e *DataFormatError) Error() string {
	msg := "data format error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataFormatError) Unwrap() error { return e.Err }

// InvalidDateError indicates a date string that is not in YYYY-MM-DD form.
type InvalidDateError struct {
	Input string
	Err   error
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q: expected YYYY-MM-DD", e.Input)
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

func formatErr(source, reason string, err error) error {
	return &DataFormatError{Source: source, Reason: reason, Err: err}
}
