package config

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/Masterminds/semver"
)

var (
	// cloud region codes: lowercase letter start, letters/digits/hyphens,
	// 3-25 chars total, no trailing hyphen
	regionRegexp = regexp.MustCompile(`^[a-z][a-z0-9-]{1,23}[a-z0-9]$`)

	// DNS label: at most 63 chars, lowercase alphanumerics and hyphens,
	// no leading or trailing hyphen
	namespaceRegexp = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]{0,61}[a-z0-9])?$`)

	// marketplace AWS account ids are exactly 12 digits
	accountIDRegexp = regexp.MustCompile(`^[0-9]{12}$`)

	addonNameRegexp = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// FieldError reports a syntactically invalid addon field. Nothing is
// persisted when one is returned.
type FieldError struct {
	Field string
	Value string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// IsValidRegion reports whether value is a well-formed cloud region code
func IsValidRegion(value string) bool {
	return regionRegexp.MatchString(value)
}

// IsValidNamespace reports whether value is a well-formed DNS-label namespace
func IsValidNamespace(value string) bool {
	return namespaceRegexp.MatchString(value)
}

// IsValidAccountID reports whether value is a well-formed AWS account id
func IsValidAccountID(value string) bool {
	return accountIDRegexp.MatchString(value)
}

// IsValidHelmURL reports whether value is an absolute URL
func IsValidHelmURL(value string) bool {
	u, err := url.Parse(value)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// IsValidAddonName reports whether value is a well-formed addon name
func IsValidAddonName(value string) bool {
	return addonNameRegexp.MatchString(value)
}

// IsValidVersion reports whether value parses as a semantic version
func IsValidVersion(value string) bool {
	_, err := semver.NewVersion(value)
	return err == nil
}

// ValidateField checks one addon field by kind
func ValidateField(field, value string) error {
	valid := false
	switch field {
	case "addon_name":
		valid = IsValidAddonName(value)
	case "addon_version":
		valid = IsValidVersion(value)
	case "helm_url":
		valid = IsValidHelmURL(value)
	case "marketplace_id":
		valid = IsValidAccountID(value)
	case "namespace":
		valid = IsValidNamespace(value)
	case "region":
		valid = IsValidRegion(value)
	default:
		return fmt.Errorf("unknown addon field: %q", field)
	}
	if !valid {
		return &FieldError{Field: field, Value: value}
	}
	return nil
}

// ValidateRecord checks every field of an addon record and its identity
func ValidateRecord(id AddonIdentity, record AddonRecord) error {
	fields := []struct {
		field string
		value string
	}{
		{"addon_name", id.Name},
		{"addon_version", id.Version},
		{"helm_url", record.HelmURL},
		{"marketplace_id", record.AccountID},
		{"namespace", record.Namespace},
		{"region", record.Region},
	}
	for _, f := range fields {
		if err := ValidateField(f.field, f.value); err != nil {
			return err
		}
	}
	return nil
}

// versionLess reports whether version a sorts before b. Well-formed
// semver is compared semantically, anything else lexically.
func versionLess(a, b string) bool {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return va.LessThan(vb)
}
