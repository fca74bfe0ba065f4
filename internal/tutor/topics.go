package tutor

// DefaultTopics lists the NCERT Class 10 Geography themes the curriculum
// PDF covers. A deployment can override the list in configuration.
var DefaultTopics = []string{
	"Resources and Development",
	"Forest and Wildlife Resources",
	"Water Resources",
	"Agriculture",
	"Minerals and Energy Resources",
	"Manufacturing Industries",
	"Lifelines of National Economy",
	"Renewable and Non-renewable Resources",
	"Sustainable Development",
	"Conservation of Resources",
	"Types of Agriculture",
	"Major Crops in India",
	"Industrial Development",
	"Transportation and Communication",
	"International Trade",
}
