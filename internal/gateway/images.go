package gateway

import "sort"

// fallbackImageRegion is used for regions missing from imageIDs.
const fallbackImageRegion = "us-east-1"

// imageIDs maps each launchable region to its Amazon Linux 2023 x86_64 image.
// The key set doubles as the list of supported launch regions.
var imageIDs = map[string]string{
	"us-east-1":      "ami-0230bd60aa48260c6",
	"us-east-2":      "ami-0a606d8395a538502",
	"us-west-1":      "ami-04fdea8e25817cd69",
	"us-west-2":      "ami-0688ba7eeeeefe3cd",
	"eu-west-1":      "ami-0d71ea30463e0ff8d",
	"eu-west-2":      "ami-0bd2230cfb28832f7",
	"eu-north-1":     "ami-092cce4a19b438926",
	"eu-central-1":   "ami-06dd92ecc74fdfb36",
	"ap-south-1":     "ami-0c2af51e265bd5e0e",
	"ap-southeast-1": "ami-0dc2d3e4c0f9ebd18",
	"ap-northeast-1": "ami-0bba69335379e17f8",
	"ca-central-1":   "ami-0c3377fc7bcdc3ed8",
	"sa-east-1":      "ami-02334c45dd95ca1fc",
}

// supportedInstanceTypes are the instance types the gateway will launch.
var supportedInstanceTypes = []string{
	"t2.micro",
	"t2.small",
	"t2.medium",
	"t3.micro",
	"t3.small",
	"t3.medium",
}

// ImageForRegion returns the machine image for region, or the fallback
// region's image when region is not listed. It never fails.
func ImageForRegion(region string) string {
	if id, ok := imageIDs[region]; ok {
		return id
	}
	return imageIDs[fallbackImageRegion]
}

// SupportedRegions returns the launchable regions, sorted.
func SupportedRegions() []string {
	out := make([]string, 0, len(imageIDs))
	for r := range imageIDs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// SupportedInstanceTypes returns the launchable instance types.
func SupportedInstanceTypes() []string {
	return append([]string(nil), supportedInstanceTypes...)
}

// Contains reports whether list holds s.
func Contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
