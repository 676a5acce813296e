package strang

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultBaseURL is the metanalys API root STRÅNG lives under.
const DefaultBaseURL = "https://opendata-download-metanalys.smhi.se/api"

const categoryPath = "/category/strang1g/version/1/geotype"

var validate = validator.New()

// PointRequest asks for the series of one parameter at one coordinate.
// From, To and Interval are optional; an interval needs at least one date.
type PointRequest struct {
	Lat       *float64 `validate:"required,gte=-90,lte=90"`
	Lon       *float64 `validate:"required,gte=-180,lte=180"`
	Parameter int
	From      string
	To        string
	Interval  Interval `validate:"omitempty,oneof=hourly daily monthly"`
}

// MultipointRequest asks for every grid point of one parameter at one time.
type MultipointRequest struct {
	Parameter int
	ValidTime string
	Interval  Interval `validate:"omitempty,oneof=hourly daily monthly"`
}

// validationError maps the first failing field onto the package errors.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.StructField() {
	case "Lat", "Lon":
		if fe.Tag() == "required" {
			return fmt.Errorf("%w: %s is required", ErrInvalidCoordinates, strings.ToLower(fe.StructField()))
		}
		return fmt.Errorf("%w: %s=%v outside [%s]", ErrInvalidCoordinates, strings.ToLower(fe.StructField()), fe.Value(), bounds(fe.StructField()))
	case "Interval":
		return fmt.Errorf("%w: %q (want hourly, daily or monthly)", ErrBadInterval, fe.Value())
	default:
		return err
	}
}

func bounds(field string) string {
	if field == "Lat" {
		return "-90, 90"
	}
	return "-180, 180"
}

func checkDate(p Parameter, s string) error {
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	if !p.Contains(t) {
		return fmt.Errorf("%w: %s not within (%s, %s) for parameter %d",
			ErrDateOutOfRange, s, p.TimeFrom.Format("2006-01-02"), p.TimeTo().Format("2006-01-02T15:04"), p.ID)
	}
	return nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// BuildPointURL validates r and composes the point data URL under base.
func BuildPointURL(base string, r PointRequest) (string, error) {
	p, err := Lookup(r.Parameter)
	if err != nil {
		return "", err
	}
	if err := validate.Struct(r); err != nil {
		return "", validationError(err)
	}
	if r.Interval != "" && r.From == "" && r.To == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingDateWithInterval, r.Interval)
	}

	var query []string
	if r.From != "" {
		if err := checkDate(p, r.From); err != nil {
			return "", err
		}
		query = append(query, "from="+url.QueryEscape(r.From))
	}
	if r.To != "" {
		if err := checkDate(p, r.To); err != nil {
			return "", err
		}
		query = append(query, "to="+url.QueryEscape(r.To))
	}
	if r.Interval != "" {
		query = append(query, "interval="+string(r.Interval))
	}

	u := fmt.Sprintf("%s%s/point/lon/%s/lat/%s/parameter/%d/data.json",
		strings.TrimSuffix(base, "/"), categoryPath, formatCoordinate(*r.Lon), formatCoordinate(*r.Lat), p.ID)
	if len(query) > 0 {
		u += "?" + strings.Join(query, "&")
	}
	return u, nil
}

// BuildMultipointURL validates r and composes the multipoint data URL under base.
func BuildMultipointURL(base string, r MultipointRequest) (string, error) {
	p, err := Lookup(r.Parameter)
	if err != nil {
		return "", err
	}
	if r.ValidTime == "" {
		return "", fmt.Errorf("%w: valid time is required", ErrBadDateFormat)
	}
	if _, err := ParseDate(r.ValidTime); err != nil {
		return "", err
	}
	if err := validate.Struct(r); err != nil {
		return "", validationError(err)
	}

	u := fmt.Sprintf("%s%s/multipoint/validtime/%s/parameter/%d/data.json",
		strings.TrimSuffix(base, "/"), categoryPath, url.PathEscape(r.ValidTime), p.ID)
	if r.Interval != "" {
		u += "?interval=" + string(r.Interval)
	}
	return u, nil
}
