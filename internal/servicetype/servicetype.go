// Package servicetype defines the closed set of billable product lines.
package servicetype

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// ServiceType identifies a billable product line with its own price
// schedule. The set is closed: lookups never see a value outside it.
type ServiceType string

const (
	CallCenter ServiceType = "call_center"
	HR         ServiceType = "hr"
)

var ErrUnknown = errors.New("unknown_service_type")

// All returns every billable service type.
func All() []ServiceType {
	return []ServiceType{CallCenter, HR}
}

// Parse validates a wire value against the closed set.
func Parse(value string) (ServiceType, error) {
	switch ServiceType(strings.ToLower(strings.TrimSpace(value))) {
	case CallCenter:
		return CallCenter, nil
	case HR:
		return HR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknown, value)
	}
}

func (s ServiceType) String() string {
	return string(s)
}

// Label returns the display name for the service.
func (s ServiceType) Label() string {
	switch s {
	case CallCenter:
		return "Call Center"
	case HR:
		return "HR"
	default:
		return string(s)
	}
}

func (s ServiceType) Valid() bool {
	_, err := Parse(string(s))
	return err == nil
}

func (s ServiceType) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, string(s))
	}
	return string(s), nil
}

func (s *ServiceType) Scan(value any) error {
	switch v := value.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ServiceType", value)
	}
}
