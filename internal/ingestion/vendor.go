package ingestion

import "strings"

// vendorSheets maps a logger vendor to the sheet its export tool writes the
// reading table into. Unknown vendors default to the first sheet.
var vendorSheets = map[string]string{
	"elitech":    "Lista",
	"novus":      "Dados",
	"instrutemp": "Dados",
	"testo":      "Data",
}

// GuessVendor infers the logger vendor from naming conventions in the file
// name. Best effort only; an empty string means unknown.
func GuessVendor(fileName string) string {
	lowered := strings.ToLower(fileName)
	for vendor := range vendorSheets {
		if strings.Contains(lowered, vendor) {
			return vendor
		}
	}
	return ""
}

func vendorSheet(vendor string) (string, bool) {
	sheet, ok := vendorSheets[vendor]
	return sheet, ok
}
