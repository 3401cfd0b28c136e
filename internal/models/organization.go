// internal/models/organization.go
package models

import (
	"fmt"
	"strconv"
)

// Organization is a tenant that entities belong to.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// OrganizationRecord is implemented by directory records that expose their
// identity through accessors instead of plain fields.
type OrganizationRecord interface {
	OrganizationID() string
	OrganizationName() string
}

// OrganizationFromRecord normalizes the record shapes a directory backend may
// hand back into an Organization.
func OrganizationFromRecord(raw interface{}) (Organization, error) {
	switch r := raw.(type) {
	case Organization:
		return r, nil
	case *Organization:
		if r == nil {
			return Organization{}, fmt.Errorf("nil organization record")
		}
		return *r, nil
	case OrganizationRecord:
		return Organization{ID: r.OrganizationID(), Name: r.OrganizationName()}, nil
	case map[string]interface{}:
		id, err := stringifyID(r["id"])
		if err != nil {
			return Organization{}, err
		}
		name, _ := r["name"].(string)
		if name == "" {
			if attrs, ok := r["attributes"].(map[string]interface{}); ok {
				name, _ = attrs["name"].(string)
			}
		}
		return Organization{ID: id, Name: name}, nil
	default:
		return Organization{}, fmt.Errorf("unsupported organization record type %T", raw)
	}
}

func stringifyID(v interface{}) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case int:
		return strconv.Itoa(id), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", fmt.Errorf("unsupported organization id type %T", v)
	}
}
