package core

import (
	"fmt"
	"strings"
)

// Brand selects which certificate chain a head unit accepts.
type Brand string

const (
	BrandBMW  Brand = "bmw"
	BrandMini Brand = "mini"
)

// Brands is the order in which brands are attempted during detection.
var Brands = []Brand{BrandBMW, BrandMini}

func (b Brand) String() string { return string(b) }

// ParseBrand accepts "bmw" or "mini" in any case.
func ParseBrand(s string) (Brand, error) {
	switch Brand(strings.ToLower(s)) {
	case BrandBMW:
		return BrandBMW, nil
	case BrandMini:
		return BrandMini, nil
	}
	return "", fmt.Errorf("unknown brand %q", s)
}

// ClassifyHMI maps the hmi.type capability to a brand. The capability is
// authoritative; it may disagree with the certificate that was accepted.
func ClassifyHMI(hmiType string) (Brand, bool) {
	switch {
	case strings.HasPrefix(hmiType, "BMW"):
		return BrandBMW, true
	case strings.HasPrefix(hmiType, "MINI"):
		return BrandMini, true
	}
	return "", false
}
