package vnames

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/common"
)

// ExpID is a W7-X experiment identifier of the form YYYYMMDD.nnn.
type ExpID struct {
	Date int // YYYYMMDD
	Num  int // nnn
}

// ParseExpID parses "YYYYMMDD.nnn". Anything other than exactly eight
// digits, a dot and three digits is rejected.
func ParseExpID(s string) (ExpID, error) {
	date, num, ok := strings.Cut(s, ".")
	if !ok || len(date) != 8 || len(num) != 3 || !allDigits(date) || !allDigits(num) {
		return ExpID{}, fmt.Errorf("%w: exp_id %q must be a string YYYYMMDD.nnn", common.ErrFormat, s)
	}
	d, _ := strconv.Atoi(date)
	n, _ := strconv.Atoi(num)
	return ExpID{Date: d, Num: n}, nil
}

// ExpIDFromNumeric is the inverse of ExpID.Numeric.
func ExpIDFromNumeric(n int64) (ExpID, error) {
	if n < 0 || n > 99999999999 {
		return ExpID{}, fmt.Errorf("%w: numeric exp_id %d out of range", common.ErrFormat, n)
	}
	return ExpID{Date: int(n / 1000), Num: int(n % 1000)}, nil
}

// Numeric returns the 11-digit form YYYYMMDDnnn used for range comparisons.
func (e ExpID) Numeric() int64 {
	return int64(e.Date)*1000 + int64(e.Num)
}

// Shot returns the MDSplus shot number YYMMDDnnn: the numeric form without
// the century digits.
func (e ExpID) Shot() int32 {
	return int32((e.Date%1000000)*1000 + e.Num)
}

func (e ExpID) String() string {
	return fmt.Sprintf("%08d.%03d", e.Date, e.Num)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
