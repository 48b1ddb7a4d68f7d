package carrier

// fallbackTable answers common networks without calling the reference service.
var fallbackTable = map[string]Info{
	"22201":  {CarrierName: "TIM Italy", CountryCode: "IT"},
	"22210":  {CarrierName: "Vodafone Italy", CountryCode: "IT"},
	"22250":  {CarrierName: "Iliad Italy", CountryCode: "IT"},
	"22288":  {CarrierName: "TIM Italy", CountryCode: "IT"},
	"22801":  {CarrierName: "Swisscom", CountryCode: "CH"},
	"22802":  {CarrierName: "Sunrise", CountryCode: "CH"},
	"22803":  {CarrierName: "Salt", CountryCode: "CH"},
	"26201":  {CarrierName: "Telekom Deutschland", CountryCode: "DE"},
	"26202":  {CarrierName: "Vodafone Germany", CountryCode: "DE"},
	"26203":  {CarrierName: "Telefonica Germany", CountryCode: "DE"},
	"20801":  {CarrierName: "Orange France", CountryCode: "FR"},
	"20810":  {CarrierName: "SFR", CountryCode: "FR"},
	"21401":  {CarrierName: "Vodafone Spain", CountryCode: "ES"},
	"23410":  {CarrierName: "O2 UK", CountryCode: "GB"},
	"23415":  {CarrierName: "Vodafone UK", CountryCode: "GB"},
	"310260": {CarrierName: "T-Mobile US", CountryCode: "US"},
	"310410": {CarrierName: "AT&T", CountryCode: "US"},
	"311480": {CarrierName: "Verizon Wireless", CountryCode: "US"},
}

// mccCountries maps mobile country codes to ISO 3166 alpha-2 codes.
var mccCountries = map[string]string{
	"202": "GR", "204": "NL", "206": "BE", "208": "FR", "214": "ES",
	"216": "HU", "222": "IT", "226": "RO", "228": "CH", "230": "CZ",
	"232": "AT", "234": "GB", "235": "GB", "238": "DK", "240": "SE",
	"242": "NO", "244": "FI", "260": "PL", "262": "DE", "268": "PT",
	"270": "LU", "272": "IE", "286": "TR", "302": "CA", "310": "US",
	"311": "US", "312": "US", "313": "US", "314": "US", "315": "US",
	"316": "US", "334": "MX", "440": "JP", "450": "KR", "460": "CN",
	"505": "AU", "530": "NZ", "655": "ZA", "724": "BR",
}

// FallbackEntry returns the static entry for mccmnc, if any.
func FallbackEntry(mccmnc string) (Info, bool) {
	info, ok := fallbackTable[mccmnc]
	if !ok {
		return Info{}, false
	}
	info.MCCMNC = mccmnc
	info.Source = SourceFallback
	return info, true
}

// CountryForMCC derives the country from the first three digits, or "" if unknown.
func CountryForMCC(mccmnc string) string {
	if len(mccmnc) < 3 {
		return ""
	}
	return mccCountries[mccmnc[:3]]
}
