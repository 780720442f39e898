package portal

import (
	"fmt"
	"strings"
)

// Name identifies a payment portal.
type Name string

const (
	ZaloPay   Name = "ZaloPay"
	GalaxyPay Name = "GalaxyPay"
)

// All lists every supported portal.
var All = []Name{ZaloPay, GalaxyPay}

// Parse maps a client-supplied portal name onto a Name, ignoring case
// and separators ("Zalopay", "zalo-pay" and "ZALOPAY" are all ZaloPay).
func Parse(raw string) (Name, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(raw)))
	for _, n := range All {
		if strings.ToLower(string(n)) == key {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown payment portal %q", raw)
}

func (n Name) String() string {
	return string(n)
}
