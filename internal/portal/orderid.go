package portal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	orderIDDateLayout = "060102"
	// MaxOrderIDLength is the generic provider limit for order ids.
	MaxOrderIDLength = 64
)

var (
	orderIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// Provider order dates are in Vietnam time regardless of host zone.
	vietnamZone = time.FixedZone("ICT", 7*60*60)
)

// NewOrderID derives the provider order id for one payment attempt:
// yymmdd_<attempt>_<documentNo>. Attempts start at 1.
func NewOrderID(now time.Time, attempt int, documentNo string) string {
	return fmt.Sprintf("%s_%d_%s", now.In(vietnamZone).Format(orderIDDateLayout), attempt, documentNo)
}

// ParseOrderID splits an order id produced by NewOrderID.
// The document number may itself contain underscores.
func ParseOrderID(id string) (datePrefix string, attempt int, documentNo string, err error) {
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 || parts[2] == "" {
		return "", 0, "", fmt.Errorf("malformed order id %q", id)
	}
	attempt, err = strconv.Atoi(parts[1])
	if err != nil || attempt < 1 {
		return "", 0, "", fmt.Errorf("malformed attempt in order id %q", id)
	}
	return parts[0], attempt, parts[2], nil
}

// DocumentNoFromOrderID returns the document segment of an order id.
func DocumentNoFromOrderID(id string) (string, error) {
	_, _, doc, err := ParseOrderID(id)
	return doc, err
}

// ValidOrderID reports whether id fits the provider character set and maxLen.
func ValidOrderID(id string, maxLen int) bool {
	if maxLen <= 0 || maxLen > MaxOrderIDLength {
		maxLen = MaxOrderIDLength
	}
	return len(id) >= 1 && len(id) <= maxLen && orderIDPattern.MatchString(id)
}
