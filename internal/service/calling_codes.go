package service

// regionCallingCodes maps ISO 3166-1 alpha-2 regions to ITU-T E.164
// country calling codes.
var regionCallingCodes = map[string]string{
	"AE": "+971", "AR": "+54", "AT": "+43", "AU": "+61", "BD": "+880",
	"BE": "+32", "BG": "+359", "BR": "+55", "CA": "+1", "CH": "+41",
	"CL": "+56", "CN": "+86", "CO": "+57", "CZ": "+420", "DE": "+49",
	"DK": "+45", "DZ": "+213", "EG": "+20", "ES": "+34", "FI": "+358",
	"FR": "+33", "GB": "+44", "GH": "+233", "GR": "+30", "HK": "+852",
	"HU": "+36", "ID": "+62", "IE": "+353", "IL": "+972", "IN": "+91",
	"IQ": "+964", "IR": "+98", "IT": "+39", "JO": "+962", "JP": "+81",
	"KE": "+254", "KR": "+82", "KW": "+965", "LB": "+961", "LK": "+94",
	"MA": "+212", "MX": "+52", "MY": "+60", "NG": "+234", "NL": "+31",
	"NO": "+47", "NP": "+977", "NZ": "+64", "OM": "+968", "PE": "+51",
	"PH": "+63", "PK": "+92", "PL": "+48", "PT": "+351", "QA": "+974",
	"RO": "+40", "RU": "+7", "SA": "+966", "SE": "+46", "SG": "+65",
	"SY": "+963", "TH": "+66", "TN": "+216", "TR": "+90", "TW": "+886",
	"TZ": "+255", "UA": "+380", "UG": "+256", "US": "+1", "VN": "+84",
	"YE": "+967", "ZA": "+27",
}
