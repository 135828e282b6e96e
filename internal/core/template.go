package core

// Downloadable example documents, one per mode. Every line is a valid record
// so the file loads as-is once the placeholder values are replaced.
const (
	adminTemplate = "O|Example Trucking Co\n" +
		"S|Example Trucking Co|Jane|Doe|jane.doe@example.com\n" +
		"D|Example Trucking Co|John|Smith|john.smith@example.com\n"

	sponsorTemplate = "S|Jane|Doe|jane.doe@example.com\n" +
		"D|John|Smith|john.smith@example.com\n" +
		"D||Maria|Garcia|maria.garcia@example.com\n"
)

// BulkLoadTemplate returns the attachment file name and content of the
// example document for mode.
func BulkLoadTemplate(mode Mode) (name, content string) {
	if mode == ModeSponsor {
		return "sponsor_bulk_template.txt", sponsorTemplate
	}
	return "admin_bulk_template.txt", adminTemplate
}
