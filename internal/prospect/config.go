package prospect

// BusinessSearchConfig parameterizes a business discovery run.
type BusinessSearchConfig struct {
	LocationQuery   string        `json:"location_query" validate:"required,max=200"`
	RadiusKm        float64       `json:"radius_km" validate:"gte=0,lte=200"`
	MinRating       *float64      `json:"min_rating,omitempty" validate:"omitempty,gte=0,lte=5"`
	Categories      []string      `json:"categories" validate:"max=20,dive,required,max=100"`
	MaxResults      int           `json:"max_results" validate:"gte=0,lte=500"`
	ExcludeExisting []BusinessRef `json:"exclude_existing" validate:"max=10000"`
}

// JobSearchConfig parameterizes a job discovery run.
type JobSearchConfig struct {
	Platforms  []Platform `json:"platforms" validate:"required,min=1,max=6,dive,required"`
	Keywords   []string   `json:"keywords" validate:"required,min=1"`
	Location   string     `json:"location,omitempty" validate:"max=200"`
	MaxResults int        `json:"max_results" validate:"gte=0,lte=1000"`
}
