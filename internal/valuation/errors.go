package valuation

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Not-found family: the pipeline ran but some lookup came up empty. HTTP
// handlers map these to 404; anything else wrapping a store or geocoder
// failure is a dependency error.
var (
	// ErrAddressNotFound means the geocoder could not place the address.
	ErrAddressNotFound = eris.New("address could not be geocoded")

	// ErrZoneNotFound means the point falls in no zone polygon and no
	// boundary lies within the fallback radius, for a semester that does
	// have zone data.
	ErrZoneNotFound = eris.New("no OMI zone at coordinates")

	// ErrNoSemesterData means the requested semester has no zone data at
	// all (or no semester has been imported yet).
	ErrNoSemesterData = eris.New("no zone data for semester")

	// ErrNoQuotationData means the zone was resolved but carries no
	// usable price bands for the property type.
	ErrNoQuotationData = eris.New("no quotation data for zone")
)

// Validation family: the request is malformed and nothing was called.
var (
	ErrInvalidSurface      = eris.New("surface must be a positive number")
	ErrInvalidPropertyType = eris.New("invalid property type code")
	ErrInvalidSemester     = eris.New("semester must look like YYYY_S1 or YYYY_S2")
)

// IsNotFound reports whether err belongs to the not-found family.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAddressNotFound) ||
		errors.Is(err, ErrZoneNotFound) ||
		errors.Is(err, ErrNoSemesterData) ||
		errors.Is(err, ErrNoQuotationData)
}

// IsValidation reports whether err is a request validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidSurface) ||
		errors.Is(err, ErrInvalidPropertyType) ||
		errors.Is(err, ErrInvalidSemester)
}
